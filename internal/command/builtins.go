package command

import (
	"fmt"
	"strings"
)

func builtins() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"help":    handleHelp,
		"ls":      handleLs,
		"pwd":     handlePwd,
		"cd":      handleCd,
		"whoami":  handleWhoami,
		"date":    handleDate,
		"clear":   handleClear,
		"uname":   handleUname,
		"ps":      handlePs,
		"top":     handleTop,
		"df":      handleDf,
		"free":    handleFree,
		"docker":  handleDocker,
		"kubectl": handleKubectl,
		"python3": handlePython,
		"node":    handleNode,
		"cat":     handleCat,
		"mkdir":   handleMkdir,
		"touch":   handleTouch,
		"vim":     handleEditor("vim"),
		"nano":    handleEditor("nano"),
		"echo":    handleEcho,
		"history": handleHistory,
		"exit":    handleExit,
		"logout":  handleExit,
	}
}

func lines(l ...string) Result {
	return Result{Lines: l}
}

var helpText = []string{
	"Available commands:",
	"  help                 show this help",
	"  ls [-l]              list directory contents",
	"  pwd                  print working directory",
	"  cd [dir]             change directory",
	"  whoami               print current user",
	"  date                 print date and time",
	"  clear                clear the terminal",
	"  uname [-a]           print system information",
	"  ps, top              show processes",
	"  df, free             show disk and memory usage",
	"  docker <cmd>         docker ps, images, version",
	"  kubectl <cmd>        kubectl get pods|nodes|services, version",
	"  python3, node        language runtimes",
	"  cat <file>           print file contents",
	"  mkdir, touch         create directories and files",
	"  vim, nano <file>     open a file in an editor",
	"  echo, history        print text, show command history",
	"  exit                 end the lab session",
}

func handleHelp(Env, []string) Result {
	return lines(helpText...)
}

func hasFlag(args []string, flag byte) bool {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "--") && strings.IndexByte(arg, flag) >= 0 {
			return true
		}
	}
	return false
}

func handleLs(env Env, args []string) Result {
	if hasFlag(args, 'l') {
		return lines(
			"total 28",
			fmt.Sprintf("drwxr-xr-x 2 %[1]s %[1]s 4096 Jan 15 09:12 Desktop", env.User),
			fmt.Sprintf("drwxr-xr-x 2 %[1]s %[1]s 4096 Jan 15 09:12 Documents", env.User),
			fmt.Sprintf("drwxr-xr-x 2 %[1]s %[1]s 4096 Jan 15 09:12 Downloads", env.User),
			fmt.Sprintf("drwxr-xr-x 3 %[1]s %[1]s 4096 Jan 15 09:14 lab-files", env.User),
			fmt.Sprintf("drwxr-xr-x 4 %[1]s %[1]s 4096 Jan 15 09:20 projects", env.User),
			fmt.Sprintf("-rw-r--r-- 1 %[1]s %[1]s  812 Jan 15 09:10 README.md", env.User),
			fmt.Sprintf("-rw-r--r-- 1 %[1]s %[1]s  241 Jan 15 09:10 notes.txt", env.User),
		)
	}
	return lines("Desktop  Documents  Downloads  lab-files  projects  README.md  notes.txt")
}

func handlePwd(env Env, _ []string) Result {
	return lines(env.Path.String())
}

func handleCd(env Env, args []string) Result {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	return Result{ChangeDir: true, Path: env.Path.Resolve(arg, env.Home)}
}

func handleWhoami(env Env, _ []string) Result {
	return lines(string(env.User))
}

func handleDate(env Env, _ []string) Result {
	return lines(env.Now.UTC().Format("Mon Jan _2 15:04:05 MST 2006"))
}

func handleClear(Env, []string) Result {
	return Result{Clear: true}
}

func handleUname(env Env, args []string) Result {
	if hasFlag(args, 'a') {
		return lines(fmt.Sprintf("Linux %s 5.15.0-1034-azure #41-Ubuntu SMP x86_64 x86_64 x86_64 GNU/Linux", env.Host))
	}
	return lines("Linux")
}

func handlePs(env Env, args []string) Result {
	if hasFlag(args, 'a') || hasFlag(args, 'e') || (len(args) > 0 && args[0] == "aux") {
		return lines(
			"USER         PID %CPU %MEM    VSZ   RSS TTY      STAT START   TIME COMMAND",
			"root           1  0.0  0.1 167744 11520 ?        Ss   09:00   0:01 /sbin/init",
			"root         412  0.1  1.2 1358448 98304 ?       Ssl  09:00   0:04 /usr/bin/containerd",
			"root         588  0.2  2.1 1974560 172032 ?      Ssl  09:00   0:07 /usr/bin/dockerd",
			fmt.Sprintf("%-12s 1021  0.0  0.0  10040  5120 pts/0    Ss   09:12   0:00 -bash", env.User),
			fmt.Sprintf("%-12s 1187  0.0  0.0  10872  3328 pts/0    R+   09:30   0:00 ps aux", env.User),
		)
	}
	return lines(
		"    PID TTY          TIME CMD",
		"   1021 pts/0    00:00:00 bash",
		"   1187 pts/0    00:00:00 ps",
	)
}

func handleTop(Env, []string) Result {
	return lines(
		"top - 09:30:12 up 30 min,  1 user,  load average: 0.08, 0.05, 0.01",
		"Tasks:  96 total,   1 running,  95 sleeping,   0 stopped,   0 zombie",
		"%Cpu(s):  1.3 us,  0.7 sy,  0.0 ni, 97.8 id,  0.2 wa,  0.0 hi,  0.0 si",
		"MiB Mem :   7953.2 total,   5874.1 free,    912.4 used,   1166.7 buff/cache",
		"MiB Swap:      0.0 total,      0.0 free,      0.0 used.   6794.3 avail Mem",
		"",
		"    PID USER      PR  NI    VIRT    RES    SHR S  %CPU  %MEM     TIME+ COMMAND",
		"    588 root      20   0 1974560 172032  52224 S   0.3   2.1   0:07.12 dockerd",
		"    412 root      20   0 1358448  98304  41984 S   0.2   1.2   0:04.51 containerd",
		"      1 root      20   0  167744  11520   8448 S   0.0   0.1   0:01.02 systemd",
	)
}

func handleDf(Env, []string) Result {
	return lines(
		"Filesystem      Size  Used Avail Use% Mounted on",
		"/dev/root        29G  6.2G   23G  22% /",
		"tmpfs           3.9G     0  3.9G   0% /dev/shm",
		"/dev/sda15      105M  6.1M   99M   6% /boot/efi",
		"/dev/sdb1        16G   28K   15G   1% /mnt",
	)
}

func handleFree(Env, []string) Result {
	return lines(
		"               total        used        free      shared  buff/cache   available",
		"Mem:         8144080      934312     6015080        2752     1194688     6957424",
		"Swap:              0           0           0",
	)
}

func handleDocker(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines(
			"Usage:  docker [OPTIONS] COMMAND",
			"Common commands: ps, images, run, version",
		)
	}
	switch strings.ToLower(args[0]) {
	case "ps":
		return lines(
			"CONTAINER ID   IMAGE          COMMAND                  CREATED        STATUS        PORTS                NAMES",
			"3f2a9c1b7d4e   nginx:1.25     \"/docker-entrypoint.…\"   10 minutes ago Up 10 minutes 0.0.0.0:8080->80/tcp  web",
			"9b8e7f6a5c4d   postgres:16    \"docker-entrypoint.s…\"   10 minutes ago Up 10 minutes 5432/tcp             db",
		)
	case "images":
		return lines(
			"REPOSITORY   TAG       IMAGE ID       CREATED       SIZE",
			"nginx        1.25      a8758716bb6a   2 weeks ago   187MB",
			"postgres     16        d2b3c7a1f0e9   3 weeks ago   432MB",
			"python       3.10      5e1f3c8b2a90   4 weeks ago   1.01GB",
		)
	case "version", "--version", "-v":
		return lines("Docker version 24.0.7, build afdd53b")
	case "run":
		image := "hello-world"
		if len(args) > 1 {
			image = args[len(args)-1]
		}
		return lines(
			fmt.Sprintf("Unable to find image '%s:latest' locally", image),
			"latest: Pulling from library/"+image,
			"Status: Downloaded newer image for "+image+":latest",
			"Hello from Docker! This message shows that your installation appears to be working correctly.",
		)
	default:
		return lines(fmt.Sprintf("docker: '%s' is not a docker command.", args[0]), "See 'docker --help'")
	}
}

func handleKubectl(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines(
			"kubectl controls the Kubernetes cluster manager.",
			"Basic commands: get, describe, apply, delete, version",
		)
	}
	switch strings.ToLower(args[0]) {
	case "version":
		return lines(
			"Client Version: v1.28.4",
			"Kustomize Version: v5.0.4-0.20230601165947-6ce0bf390ce3",
			"Server Version: v1.28.3",
		)
	case "get":
		resource := ""
		if len(args) > 1 {
			resource = strings.ToLower(args[1])
		}
		switch resource {
		case "pods", "pod", "po":
			return lines(
				"NAME                     READY   STATUS    RESTARTS   AGE",
				"web-7d4b9c8f6d-2xkqp     1/1     Running   0          12m",
				"web-7d4b9c8f6d-9rtlm     1/1     Running   0          12m",
				"db-0                     1/1     Running   0          12m",
			)
		case "nodes", "node", "no":
			return lines(
				"NAME          STATUS   ROLES           AGE   VERSION",
				"lab-control   Ready    control-plane   45m   v1.28.3",
				"lab-worker-1  Ready    <none>          44m   v1.28.3",
			)
		case "services", "service", "svc":
			return lines(
				"NAME         TYPE        CLUSTER-IP      EXTERNAL-IP   PORT(S)    AGE",
				"kubernetes   ClusterIP   10.96.0.1       <none>        443/TCP    45m",
				"web          ClusterIP   10.96.120.14    <none>        80/TCP     12m",
			)
		case "":
			return lines("error: you must specify the type of resource to get.")
		default:
			return lines(fmt.Sprintf("error: the server doesn't have a resource type \"%s\"", args[1]))
		}
	default:
		return lines(fmt.Sprintf("error: unknown command \"%s\" for \"kubectl\"", args[0]))
	}
}

func handlePython(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines(
			"Python 3.10.12 (main, Nov 20 2023, 15:14:05) [GCC 11.4.0] on linux",
			"Interactive mode is not available in this lab terminal; run a script instead.",
		)
	}
	switch args[0] {
	case "--version", "-V":
		return lines("Python 3.10.12")
	}
	return lines(
		fmt.Sprintf("Running %s ...", args[0]),
		"Hello from the lab environment!",
		"Process finished with exit code 0",
	)
}

func handleNode(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines(
			"Welcome to Node.js v18.19.0.",
			"Interactive mode is not available in this lab terminal; run a script instead.",
		)
	}
	switch args[0] {
	case "--version", "-v":
		return lines("v18.19.0")
	}
	return lines(
		fmt.Sprintf("Running %s ...", args[0]),
		"Hello from the lab environment!",
	)
}

var catFiles = map[string][]string{
	"README.md": {
		"# Cloud Lab",
		"",
		"Welcome to your lab environment. Use the terminal to complete the exercises",
		"listed in lab-files/instructions.txt. Type 'help' for available commands.",
	},
	"notes.txt": {
		"- docker ps shows running containers",
		"- kubectl get pods lists workloads in the lab cluster",
	},
	"lab-files/instructions.txt": {
		"Exercise 1: list the running containers.",
		"Exercise 2: list the pods in the lab cluster.",
		"Exercise 3: check disk and memory usage.",
	},
}

func handleCat(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines("cat: missing file operand")
	}
	var out []string
	for _, name := range args {
		content, ok := catFiles[strings.TrimPrefix(name, "./")]
		if !ok {
			out = append(out, fmt.Sprintf("cat: %s: No such file or directory", name))
			continue
		}
		out = append(out, content...)
	}
	return lines(out...)
}

func handleMkdir(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines("mkdir: missing operand", "Try 'mkdir --help' for more information.")
	}
	out := make([]string, 0, len(args))
	for _, name := range args {
		out = append(out, fmt.Sprintf("mkdir: created directory '%s'", name))
	}
	return lines(out...)
}

func handleTouch(_ Env, args []string) Result {
	if len(args) == 0 {
		return lines("touch: missing file operand", "Try 'touch --help' for more information.")
	}
	out := make([]string, 0, len(args))
	for _, name := range args {
		out = append(out, fmt.Sprintf("touch: created file '%s'", name))
	}
	return lines(out...)
}

func handleEditor(editor string) HandlerFunc {
	return func(_ Env, args []string) Result {
		target := "a new buffer"
		if len(args) > 0 {
			target = "'" + args[0] + "'"
		}
		return lines(
			fmt.Sprintf("%s: opening %s", editor, target),
			"Full-screen editors are not available in the lab terminal; use the lab code editor instead.",
		)
	}
}

func handleEcho(env Env, args []string) Result {
	if env.Line.Remainder != "" {
		return lines(env.Line.Remainder)
	}
	return lines(strings.Join(args, " "))
}

func handleHistory(env Env, _ []string) Result {
	if len(env.History) == 0 {
		return lines("no commands in history")
	}
	out := make([]string, 0, len(env.History))
	for i, entry := range env.History {
		out = append(out, fmt.Sprintf("%5d  %s", i+1, entry))
	}
	return lines(out...)
}

func handleExit(Env, []string) Result {
	return Result{Lines: []string{"logout"}, End: true}
}
