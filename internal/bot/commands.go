package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CommandKind identifies a text command.
type CommandKind int

const (
	cmdUnknown CommandKind = iota
	CmdAdd
	CmdDelete
	CmdComplete
	CmdEdit
	CmdClear
	CmdRemind
	CmdView
	CmdViewAssigned
	CmdAssign
	CmdUnassign
	CmdSetName
	CmdSetTimezone
	CmdProfile
	CmdHelp
)

// Command is a parsed chat command. Free text keeps the user's casing.
type Command struct {
	Kind       CommandKind
	TaskID     int
	Text       string
	AssigneeID int64
	Note       string
}

// ErrUnknownCommand is returned for messages that are not task commands.
var ErrUnknownCommand = errors.New("unknown command")

// UsageError reports a recognized command with bad arguments.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

func usage(u string) error {
	return &UsageError{Usage: u}
}

const (
	usageAdd      = "add task <description>"
	usageDelete   = "del task #N"
	usageComplete = "complete task #N"
	usageEdit     = "edit task #N [new description]"
	usageRemind   = "remind task #N <time>"
	usageAssign   = "assign task #N to <user id> [with note <text>]"
	usageUnassign = "unassign task #N"
	usageName     = "tasks set name <name>"
	usageTimezone = "tasks set timezone <IANA zone, e.g. Europe/Berlin>"
)

// ParseCommand maps a chat message to a Command.
func ParseCommand(text string) (Command, error) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return Command{}, ErrUnknownCommand
	}

	switch strings.ToLower(words[0]) {
	case "/start", "/help":
		return Command{Kind: CmdHelp}, nil
	case "/tasks":
		return Command{Kind: CmdView}, nil
	}

	if rest, ok := matchWords(words, "help", "tasks"); ok && len(rest) == 0 {
		return Command{Kind: CmdHelp}, nil
	}
	if rest, ok := matchWords(words, "view", "tasks"); ok && len(rest) == 0 {
		return Command{Kind: CmdView}, nil
	}
	if rest, ok := matchWords(words, "view", "assigned"); ok && len(rest) == 0 {
		return Command{Kind: CmdViewAssigned}, nil
	}
	if rest, ok := matchWords(words, "tasks", "profile"); ok && len(rest) == 0 {
		return Command{Kind: CmdProfile}, nil
	}
	if rest, ok := matchWords(words, "tasks", "set", "name"); ok {
		if len(rest) == 0 {
			return Command{}, usage(usageName)
		}
		return Command{Kind: CmdSetName, Text: strings.Join(rest, " ")}, nil
	}
	if rest, ok := matchWords(words, "tasks", "set", "timezone"); ok {
		if len(rest) != 1 {
			return Command{}, usage(usageTimezone)
		}
		return Command{Kind: CmdSetTimezone, Text: rest[0]}, nil
	}
	if rest, ok := matchWords(words, "del", "all", "tasks"); ok && len(rest) == 0 {
		return Command{Kind: CmdClear}, nil
	}
	if rest, ok := matchWords(words, "add", "task"); ok {
		if len(rest) == 0 {
			return Command{}, usage(usageAdd)
		}
		return Command{Kind: CmdAdd, Text: strings.Join(rest, " ")}, nil
	}
	if rest, ok := matchWords(words, "del", "task"); ok {
		return singleTask(CmdDelete, rest, usageDelete)
	}
	if rest, ok := matchWords(words, "complete", "task"); ok {
		return singleTask(CmdComplete, rest, usageComplete)
	}
	if rest, ok := matchWords(words, "unassign", "task"); ok {
		return singleTask(CmdUnassign, rest, usageUnassign)
	}
	if rest, ok := matchWords(words, "edit", "task"); ok {
		if len(rest) == 0 {
			return Command{}, usage(usageEdit)
		}
		id, err := parseTaskRef(rest[0])
		if err != nil {
			return Command{}, usage(usageEdit)
		}
		return Command{Kind: CmdEdit, TaskID: id, Text: strings.Join(rest[1:], " ")}, nil
	}
	if rest, ok := matchWords(words, "remind", "task"); ok {
		if len(rest) < 2 {
			return Command{}, usage(usageRemind)
		}
		id, err := parseTaskRef(rest[0])
		if err != nil {
			return Command{}, usage(usageRemind)
		}
		return Command{Kind: CmdRemind, TaskID: id, Text: strings.Join(rest[1:], " ")}, nil
	}
	if rest, ok := matchWords(words, "assign", "task"); ok {
		return parseAssign(rest)
	}

	return Command{}, ErrUnknownCommand
}

func parseAssign(rest []string) (Command, error) {
	if len(rest) < 3 || !strings.EqualFold(rest[1], "to") {
		return Command{}, usage(usageAssign)
	}
	id, err := parseTaskRef(rest[0])
	if err != nil {
		return Command{}, usage(usageAssign)
	}
	assignee, err := parseUserRef(rest[2])
	if err != nil {
		return Command{}, usage(usageAssign)
	}
	cmd := Command{Kind: CmdAssign, TaskID: id, AssigneeID: assignee}

	tail := rest[3:]
	if len(tail) == 0 {
		return cmd, nil
	}
	note, ok := matchWords(tail, "with", "note")
	if !ok || len(note) == 0 {
		return Command{}, usage(usageAssign)
	}
	cmd.Note = strings.Join(note, " ")
	return cmd, nil
}

func singleTask(kind CommandKind, rest []string, u string) (Command, error) {
	if len(rest) != 1 {
		return Command{}, usage(u)
	}
	id, err := parseTaskRef(rest[0])
	if err != nil {
		return Command{}, usage(u)
	}
	return Command{Kind: kind, TaskID: id}, nil
}

// matchWords strips a case-insensitive word prefix.
func matchWords(words []string, prefix ...string) ([]string, bool) {
	if len(words) < len(prefix) {
		return nil, false
	}
	for i, p := range prefix {
		if !strings.EqualFold(words[i], p) {
			return nil, false
		}
	}
	return words[len(prefix):], true
}

// parseTaskRef accepts "#3" or "3".
func parseTaskRef(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(raw, "#"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task number %q", raw)
	}
	return id, nil
}

// parseUserRef accepts a numeric user id, optionally prefixed with "@".
func parseUserRef(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "@"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}
