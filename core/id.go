package core

import (
	"github.com/google/uuid"

	"pkt.systems/labterm/schema"
)

func newID() schema.SessionID {
	return schema.SessionID(uuid.NewString())
}
