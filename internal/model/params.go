package model

import "fmt"

// Param is one named learnable buffer. Data aliases the live layer storage,
// so writing through it updates the model directly.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
}

type paramSet struct {
	list []Param
	seen map[string]bool
}

func (p *paramSet) add(name string, data []float32, shape ...int) {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		panic(fmt.Sprintf("model: param %s shape %v does not cover %d values", name, shape, len(data)))
	}
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	if p.seen[name] {
		panic(fmt.Sprintf("model: duplicate param name %s", name))
	}
	p.seen[name] = true
	p.list = append(p.list, Param{Name: name, Shape: append([]int(nil), shape...), Data: data})
}
