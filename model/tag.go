package model

import (
	"strings"
)

// Direction is the parameter direction of a field when the struct is bound as
// command parameters.
type Direction int

const (
	DirectionIn Direction = iota
	DirectionOut
	DirectionInOut
	DirectionReturn
)

func (d Direction) String() string {
	switch d {
	case DirectionOut:
		return "out"
	case DirectionInOut:
		return "inout"
	case DirectionReturn:
		return "return"
	default:
		return "in"
	}
}

// IsOutput reports whether the driver writes a value back for this direction.
func (d Direction) IsOutput() bool {
	return d != DirectionIn
}

// Tag represents a parsed jmap tag
type Tag struct {
	Column     string
	Omit       bool
	PrimaryKey bool
	Direction  Direction
	NoBind     bool
	Children   bool
	ForeignKey string
	References string
	Inline     bool
}

// ParseTag parses the "jmap" tag string.
//
//	`jmap:"column:user_id;pk"`
//	`jmap:"out"`
//	`jmap:"children;fk:ParentID;references:ID"`
//	`jmap:"-"`
func ParseTag(tagStr string) *Tag {
	tag := &Tag{}
	tagStr = strings.TrimSpace(tagStr)
	if tagStr == "" {
		return tag
	}
	if tagStr == "-" {
		tag.Omit = true
		return tag
	}

	parts := strings.FieldsFunc(tagStr, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})

	for _, part := range parts {
		kv := strings.SplitN(part, ":", 2)
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		var val string
		if len(kv) > 1 {
			val = strings.TrimSpace(kv[1])
		}

		switch key {
		case "column":
			tag.Column = val
		case "pk":
			tag.PrimaryKey = true
		case "in":
			tag.Direction = DirectionIn
		case "out", "output":
			tag.Direction = DirectionOut
		case "inout":
			tag.Direction = DirectionInOut
		case "return":
			tag.Direction = DirectionReturn
		case "nobind", "readonly":
			tag.NoBind = true
		case "children", "has_many":
			tag.Children = true
		case "fk", "foreignkey":
			tag.ForeignKey = val
		case "references":
			tag.References = val
		case "inline":
			tag.Inline = true
		}
	}
	return tag
}
