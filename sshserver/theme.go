package sshserver

import "strconv"

type rgb struct {
	r int
	g int
	b int
}

type tuiTheme struct {
	StatusBG     rgb
	StatusFG     rgb
	StatusWarnFG rgb
	PausedFG     rgb
	EndedFG      rgb
	PromptFG     rgb
	NoticeFG     rgb
	ErrorFG      rgb
}

const (
	ansiReset = "\x1b[0m"
	ansiBold  = "\x1b[1m"
)

// lowTimeSeconds is the remaining time at which the status bar turns to the warning color.
const lowTimeSeconds = 60

var defaultTheme = tuiTheme{
	StatusBG:     rgb{r: 26, g: 27, b: 38},
	StatusFG:     rgb{r: 192, g: 202, b: 245},
	StatusWarnFG: rgb{r: 255, g: 158, b: 100},
	PausedFG:     rgb{r: 125, g: 207, b: 255},
	EndedFG:      rgb{r: 247, g: 118, b: 142},
	PromptFG:     rgb{r: 158, g: 206, b: 106},
	NoticeFG:     rgb{r: 224, g: 175, b: 104},
	ErrorFG:      rgb{r: 247, g: 118, b: 142},
}

func ansiFgRGB(c rgb) string {
	return "\x1b[38;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}

func ansiBgRGB(c rgb) string {
	return "\x1b[48;2;" + strconv.Itoa(c.r) + ";" + strconv.Itoa(c.g) + ";" + strconv.Itoa(c.b) + "m"
}
