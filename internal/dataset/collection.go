package dataset

import "sort"

// Collection maps table names to tables.
type Collection struct {
	tables map[string]*Table
}

// NewCollection returns a collection holding tables.
func NewCollection(tables ...*Table) (*Collection, error) {
	c := &Collection{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if err := c.Add(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add registers t. Names must be unique.
func (c *Collection) Add(t *Table) error {
	if _, dup := c.tables[t.Name()]; dup {
		return &Error{Dataset: t.Name(), Row: -1, Message: "duplicate table"}
	}
	c.tables[t.Name()] = t
	return nil
}

// Table returns the named table.
func (c *Collection) Table(name string) (*Table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, &Error{Dataset: name, Row: -1, Message: "unknown dataset"}
	}
	return t, nil
}

// Names returns the table names in sorted order.
func (c *Collection) Names() []string {
	names := make([]string, 0, len(c.tables))
	for n := range c.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
