package handlers

import (
	"encoding/json"
	"time"

	"github.com/localnerve/formentries/internal/lifecycle"
	"github.com/localnerve/formentries/internal/types"
)

// Envelope is the request body of upload, archive and delete. data carries
// one command or a batch.
type Envelope struct {
	Data types.OneOrMany[Command] `json:"data"`
}

// Command is one entry command.
type Command struct {
	Type          string        `json:"type"`
	ID            string        `json:"id"`
	Attributes    Attributes    `json:"attributes"`
	Relationships Relationships `json:"relationships"`
}

// Attributes of an entry command.
type Attributes struct {
	Form         FormAttr         `json:"form"`
	BranchCounts map[string]int64 `json:"branch_counts,omitempty"`
	ChildCounts  int64            `json:"child_counts,omitempty"`
	Title        string           `json:"title,omitempty"`
	Answers      json.RawMessage  `json:"answers,omitempty" swaggertype:"object"`
	CreatedAt    string           `json:"created_at,omitempty"`
}

// FormAttr names the form of an entry.
type FormAttr struct {
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

// Relationships of an entry command.
type Relationships struct {
	Parent *ParentRel `json:"parent,omitempty"`
	Branch *BranchRel `json:"branch,omitempty"`
	User   *UserRel   `json:"user,omitempty"`
}

// ParentRel points at the parent entry.
type ParentRel struct {
	Data *struct {
		ParentFormRef   string `json:"parent_form_ref"`
		ParentEntryUUID string `json:"parent_entry_uuid"`
	} `json:"data"`
}

// BranchRel points at the owner entry of a branch entry.
type BranchRel struct {
	Data *struct {
		OwnerInputRef  string `json:"owner_input_ref"`
		OwnerEntryUUID string `json:"owner_entry_uuid"`
	} `json:"data"`
}

// UserRel names the creating user.
type UserRel struct {
	Data struct {
		ID types.FlexID `json:"id"`
	} `json:"data"`
}

// Target reports whether the command addresses a branch entry.
func (cmd *Command) Target() lifecycle.Target {
	if cmd.Type == string(lifecycle.TargetBranch) || cmd.Attributes.Form.Type == "branch" {
		return lifecycle.TargetBranch
	}
	if b := cmd.Relationships.Branch; b != nil && b.Data != nil && b.Data.OwnerEntryUUID != "" {
		return lifecycle.TargetBranch
	}
	return lifecycle.TargetEntry
}

func (cmd *Command) parentUUID() string {
	if p := cmd.Relationships.Parent; p != nil && p.Data != nil {
		return p.Data.ParentEntryUUID
	}
	return ""
}

func (cmd *Command) owner() (uuid, inputRef string) {
	if b := cmd.Relationships.Branch; b != nil && b.Data != nil {
		return b.Data.OwnerEntryUUID, b.Data.OwnerInputRef
	}
	return "", ""
}

func (cmd *Command) userID(fallback string) string {
	if u := cmd.Relationships.User; u != nil && u.Data.ID != "" {
		return u.Data.ID.String()
	}
	return fallback
}

func (cmd *Command) createdAt() (time.Time, error) {
	if cmd.Attributes.CreatedAt == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, cmd.Attributes.CreatedAt)
}
