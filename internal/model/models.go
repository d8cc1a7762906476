package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Group is an organizational bucket for processes. It only drives the output
// directory layout.
type Group struct {
	ID   int64  `json:"GroupID"`
	Name string `json:"Group"`
}

// Process is a remote workflow template that owns forms.
type Process struct {
	ID              int64  `json:"ProcessID"`
	Name            string `json:"Process"`
	Enabled         Flag   `json:"Enabled"`
	GroupID         int64  `json:"GroupID"`
	Archived        Flag   `json:"Archived"`
	Fields          Text   `json:"Fields"`
	RepeatingFields Text   `json:"RepeatingFields"`
	Added           Text   `json:"Added"`
	Modified        Text   `json:"Modified"`
}

// Form is one submitted instance of a process, keyed by (ProcessID, ID).
type Form struct {
	ProcessID int64 `json:"ProcessID"`
	ID        int64 `json:"ID"`
	Archived  Flag  `json:"Archived"`
	Completed bool  `json:"Completed"`
}

// Endpoints holds the remote API URLs.
type Endpoints struct {
	Groups    string `mapstructure:"groups" json:"groups"`
	Processes string `mapstructure:"processes" json:"processes"`
	Forms     string `mapstructure:"forms" json:"forms"`
	Data      string `mapstructure:"data" json:"data"`
	Files     string `mapstructure:"files" json:"files"`
}

// Flag is a boolean that the remote service may send as true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", `""`:
		*f = false
		return nil
	case "true":
		*f = true
		return nil
	case "false":
		*f = false
		return nil
	}
	s := string(bytes.Trim(b, `"`))
	if v, err := strconv.ParseBool(s); err == nil {
		*f = Flag(v)
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %s", b)
	}
	*f = n != 0
	return nil
}

// Text accepts any JSON scalar and keeps its textual form.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}
