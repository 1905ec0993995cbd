// Copyright 2024 EMQ Technologies Co., Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plan

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lf-edge/planopt/internal/catalog"
	"github.com/lf-edge/planopt/pkg/errorx"
)

// Context is the state of one compilation as it flows through the passes.
//
// A context is owned by exactly one holder. Every transition (ReplaceGraph,
// WithFlags, WithAnnotation, Rewrite) hands back a successor and consumes
// the receiver, whose Graph then returns nil. Using a consumed context for
// another transition panics.
type Context struct {
	id          string
	graph       *Graph
	flags       Flags
	catalog     catalog.Catalog
	annotations map[string]any
	consumed    bool
}

func New(g *Graph, flags Flags, cat catalog.Catalog) (*Context, error) {
	if g == nil {
		return nil, errorx.NewMalformedPlanError("plan is nil")
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &Context{
		id:      uuid.NewString(),
		graph:   g,
		flags:   flags,
		catalog: cat,
	}, nil
}

// ID identifies the compilation. Successor contexts keep it.
func (c *Context) ID() string {
	return c.id
}

func (c *Context) Graph() *Graph {
	return c.graph
}

func (c *Context) Flags() Flags {
	return c.flags
}

func (c *Context) Catalog() catalog.Catalog {
	return c.catalog
}

func (c *Context) Consumed() bool {
	return c.consumed
}

func (c *Context) Annotation(key string) (any, bool) {
	v, ok := c.annotations[key]
	return v, ok
}

// Table looks a table up in the catalog of the compilation.
func (c *Context) Table(name string) (*catalog.TableDescriptor, error) {
	if c.catalog == nil {
		return nil, errorx.NewCatalogLookupError(fmt.Sprintf("no catalog to resolve table %s", name))
	}
	return c.catalog.GetTable(name)
}

func (c *Context) successor() *Context {
	if c.consumed {
		panic(fmt.Sprintf("plan context %s already consumed", c.id))
	}
	n := &Context{
		id:      c.id,
		graph:   c.graph,
		flags:   c.flags,
		catalog: c.catalog,
	}
	if len(c.annotations) > 0 {
		n.annotations = make(map[string]any, len(c.annotations))
		for k, v := range c.annotations {
			n.annotations[k] = v
		}
	}
	c.consumed = true
	c.graph = nil
	return n
}

// ReplaceGraph transfers the compilation to a successor holding g.
func (c *Context) ReplaceGraph(g *Graph) *Context {
	n := c.successor()
	n.graph = g
	return n
}

func (c *Context) WithFlags(f Flags) *Context {
	n := c.successor()
	n.flags = f
	return n
}

func (c *Context) WithAnnotation(key string, value any) *Context {
	n := c.successor()
	if n.annotations == nil {
		n.annotations = make(map[string]any)
	}
	n.annotations[key] = value
	return n
}

// Rewrite applies fn to a clone of the graph. On success the receiver is
// consumed and the successor holds the clone. On error the receiver is
// left usable.
func (c *Context) Rewrite(fn func(g *Graph) error) (*Context, error) {
	if c.consumed {
		panic(fmt.Sprintf("plan context %s already consumed", c.id))
	}
	clone := c.graph.Clone()
	if err := fn(clone); err != nil {
		return nil, err
	}
	return c.ReplaceGraph(clone), nil
}
