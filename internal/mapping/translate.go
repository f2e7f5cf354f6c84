package mapping

// Attribute is one converted (name, value) pair.
type Attribute struct {
	Name  string
	Value any
}

// Attributes is an ordered set of converted pairs.
type Attributes []Attribute

// Get returns the value for name.
func (a Attributes) Get(name string) (any, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is present.
func (a Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// Without returns a copy with name removed.
func (a Attributes) Without(name string) Attributes {
	out := make(Attributes, 0, len(a))
	for _, attr := range a {
		if attr.Name != name {
			out = append(out, attr)
		}
	}
	return out
}

// Translate converts raw through table. Entries whose sources are all
// absent are omitted, as are entries whose transforms reject the value.
func Translate(raw map[string]any, table Table) Attributes {
	out := make(Attributes, 0, len(table))
	for _, entry := range table {
		value, ok := firstPresent(raw, entry.Sources)
		if !ok {
			continue
		}
		for _, t := range entry.Transforms {
			if value, ok = t.Apply(value); !ok {
				break
			}
		}
		if !ok {
			continue
		}
		out = append(out, Attribute{Name: entry.Dest, Value: value})
	}
	return out
}

func firstPresent(raw map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// SuppressPower drops the power command when brightness or color is also
// present. Setting either already turns the light on.
func SuppressPower(cmds Attributes) Attributes {
	if cmds.Has(CmdTurn) && (cmds.Has(CmdBrightness) || cmds.Has(CmdColor)) {
		return cmds.Without(CmdTurn)
	}
	return cmds
}
