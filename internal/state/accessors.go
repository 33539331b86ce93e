package state

// GetBool returns field as a bool; false if unset or of another kind.
func (c *Container) GetBool(field string) bool {
	b, _ := c.Get(field).(bool)
	return b
}

// GetInt returns field as an int; 0 if unset or of another kind.
func (c *Container) GetInt(field string) int {
	n, _ := c.Get(field).(int)
	return n
}

// GetFloat returns field as a float64; 0 if unset or of another kind.
func (c *Container) GetFloat(field string) float64 {
	f, _ := c.Get(field).(float64)
	return f
}

// GetString returns field as a string; "" if unset or of another kind.
func (c *Container) GetString(field string) string {
	s, _ := c.Get(field).(string)
	return s
}

// GetStrings returns a copy of a StringList field.
func (c *Container) GetStrings(field string) []string {
	l, _ := c.Get(field).([]string)
	out := make([]string, len(l))
	copy(out, l)
	return out
}

// GetObject returns an Object field; nil if unset.
func (c *Container) GetObject(field string) map[string]any {
	m, _ := c.Get(field).(map[string]any)
	return m
}

// Values returns the current values keyed by field name, for use as an
// expression environment. Slices and maps are shared with the container
// and must not be mutated.
func (c *Container) Values() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]any, len(c.slots))
	for name, s := range c.slots {
		out[name] = s.value
	}
	return out
}
