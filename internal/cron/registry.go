package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of periodic work. Name labels its logs and metrics and must
// be unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

// NewRegistry registers jobs in order, skipping nil entries.
func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: map[string]struct{}{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register appends job. Blank and duplicate names are rejected.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("job is required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if r.names == nil {
		r.names = map[string]struct{}{}
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Names lists job names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}

// Only narrows the registry to the named jobs, keeping registration order.
// An empty selection returns the registry unchanged.
func (r *Registry) Only(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := r.names[name]; !ok {
			return nil, fmt.Errorf("unknown job %q (registered: %s)", name, strings.Join(r.Names(), ", "))
		}
		wanted[name] = struct{}{}
	}
	var selected []Job
	for _, job := range r.jobs {
		if _, ok := wanted[job.Name()]; ok {
			selected = append(selected, job)
		}
	}
	return NewRegistry(selected...)
}
