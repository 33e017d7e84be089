// Package relation builds the foreign key graph of a database and checks
// referential integrity along it.
package relation

import (
	"context"
	"sort"

	"github.com/jadedragon942/dbharbor/catalog"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

// Graph is the directed foreign key graph: an edge runs from the
// referencing table to the referenced one. Incoming walks the transposed
// graph.
type Graph struct {
	fks      []schema.ForeignKey
	outgoing map[schema.ObjectRef][]int
	incoming map[schema.ObjectRef][]int
}

// BuildGraph reads every foreign key of the current database with one
// metadata query.
func BuildGraph(ctx context.Context, sess *session.Session) (*Graph, error) {
	edges, err := catalog.New(sess).ForeignKeys(ctx)
	if err != nil {
		return nil, err
	}
	return NewGraph(edges), nil
}

// NewGraph groups edges into constraints. Edges of one constraint must be
// adjacent and ordered by position.
func NewGraph(edges []schema.ForeignKeyEdge) *Graph {
	g := &Graph{
		fks:      schema.GroupForeignKeys(edges),
		outgoing: make(map[schema.ObjectRef][]int),
		incoming: make(map[schema.ObjectRef][]int),
	}
	for i, fk := range g.fks {
		g.outgoing[fk.Source] = append(g.outgoing[fk.Source], i)
		g.incoming[fk.Target] = append(g.incoming[fk.Target], i)
	}
	return g
}

func (g *Graph) ForeignKeys() []schema.ForeignKey {
	return append([]schema.ForeignKey(nil), g.fks...)
}

func (g *Graph) Edges() []schema.ForeignKeyEdge {
	var edges []schema.ForeignKeyEdge
	for _, fk := range g.fks {
		edges = append(edges, fk.Edges()...)
	}
	return edges
}

// Outgoing returns the constraints declared on table.
func (g *Graph) Outgoing(table schema.ObjectRef) []schema.ForeignKey {
	return g.pick(g.outgoing[table])
}

// Incoming returns the constraints that reference table.
func (g *Graph) Incoming(table schema.ObjectRef) []schema.ForeignKey {
	return g.pick(g.incoming[table])
}

func (g *Graph) pick(idx []int) []schema.ForeignKey {
	out := make([]schema.ForeignKey, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.fks[i])
	}
	return out
}

// Lookup finds the constraint an edge belongs to.
func (g *Graph) Lookup(edge schema.ForeignKeyEdge) (schema.ForeignKey, bool) {
	for _, i := range g.outgoing[edge.Source()] {
		if g.fks[i].Name == edge.Constraint {
			return g.fks[i], true
		}
	}
	return schema.ForeignKey{}, false
}

type Stats struct {
	Tables          int
	Relationships   int
	Connected       int
	Isolated        []schema.ObjectRef
	SelfReferencing int
}

// Stats splits tables into those taking part in at least one relationship
// and isolated ones.
func (g *Graph) Stats(tables []schema.ObjectRef) Stats {
	st := Stats{Tables: len(tables), Relationships: len(g.fks)}
	for _, fk := range g.fks {
		if fk.Source == fk.Target {
			st.SelfReferencing++
		}
	}
	for _, t := range tables {
		if len(g.outgoing[t]) > 0 || len(g.incoming[t]) > 0 {
			st.Connected++
			continue
		}
		st.Isolated = append(st.Isolated, t)
	}
	sort.Slice(st.Isolated, func(i, j int) bool {
		return st.Isolated[i].Less(st.Isolated[j])
	})
	return st
}
