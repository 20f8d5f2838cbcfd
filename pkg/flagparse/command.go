package flagparse

import (
	"fmt"

	"github.com/AustinKelsay/gtdsync/pkg/util"
)

// Command defines the command to execute.
type Command int

const (
	None = iota
	Push
	Pull
	Status
	Init
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Push:    "push",
	Pull:    "pull",
	Status:  "status",
	Init:    "init",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'push', 'pull', 'status', 'init', or 'version'", s)
}
