package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ID is a server-assigned post identifier. The client never interprets it;
// it only keeps enough of the wire form to send it back unchanged, so a
// numeric id stays a JSON number and a string id stays a JSON string.
type ID struct {
	value   string
	numeric bool
}

// NumericID builds an ID the server encodes as a JSON number.
func NumericID(n int64) ID { return ID{value: strconv.FormatInt(n, 10), numeric: true} }

// StringID builds an ID the server encodes as a JSON string.
func StringID(s string) ID { return ID{value: s} }

// ParseID reads an id typed by a user. Only a canonical integer ("12", "-3",
// not "007" or "+5") is numeric, so the id always encodes as valid JSON.
func ParseID(s string) ID {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(n, 10) == s {
		return ID{value: s, numeric: true}
	}
	return ID{value: s}
}

func (id ID) String() string { return id.value }

// IsZero reports whether the id was never assigned.
func (id ID) IsZero() bool { return id.value == "" }

func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID{value: s}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID{value: n.String(), numeric: true}
	return nil
}

// Post is the client's view of a server post.
type Post struct {
	ID        ID        `json:"id" yaml:"id"`
	Content   string    `json:"content" yaml:"content"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// timestamp layouts accepted for created_at, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses a created_at value. Layouts without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

type wirePost struct {
	ID        ID     `json:"id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

var errMissingID = errors.New("post has no id")

func (p *Post) UnmarshalJSON(data []byte) error {
	var w wirePost
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.ID.IsZero() {
		return errMissingID
	}
	var createdAt time.Time
	if w.CreatedAt != "" {
		t, err := ParseTimestamp(w.CreatedAt)
		if err != nil {
			return err
		}
		createdAt = t
	}
	*p = Post{ID: w.ID, Content: w.Content, CreatedAt: createdAt}
	return nil
}

// MarshalYAML keeps numeric ids unquoted in YAML output.
func (id ID) MarshalYAML() (any, error) {
	if id.numeric {
		if n, err := strconv.ParseInt(id.value, 10, 64); err == nil {
			return n, nil
		}
	}
	return id.value, nil
}
