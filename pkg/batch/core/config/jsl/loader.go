package jsl

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

const loaderModule = "jsl_loader"

// Parse reads job definitions from a JSL document. The document is either a single job
// or a `jobs:` list. Structural problems are configuration errors.
func Parse(data []byte) ([]Job, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, exception.NewBatchError(loaderModule, "failed to parse JSL document", err, false, false)
	}
	jobs := doc.Jobs
	if len(jobs) == 0 {
		var single Job
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, exception.NewBatchError(loaderModule, "failed to parse JSL job", err, false, false)
		}
		jobs = []Job{single}
	}

	seen := make(map[string]bool, len(jobs))
	for _, job := range jobs {
		if err := checkJob(job); err != nil {
			return nil, err
		}
		if seen[job.Name] {
			return nil, exception.NewConfigurationError(loaderModule, "JSL job '%s' is defined twice", job.Name)
		}
		seen[job.Name] = true
		logger.Debugf("Parsed JSL job '%s' (%d nodes).", job.Name, len(job.Nodes))
	}
	return jobs, nil
}

// ParseAll parses several documents, rejecting duplicate job names across them.
func ParseAll(documents ...JSLDefinitionBytes) ([]Job, error) {
	var all []Job
	seen := make(map[string]bool)
	for _, d := range documents {
		if len(bytes.TrimSpace(d)) == 0 {
			continue
		}
		jobs, err := Parse(d)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if seen[job.Name] {
				return nil, exception.NewConfigurationError(loaderModule, "JSL job '%s' is defined twice", job.Name)
			}
			seen[job.Name] = true
			all = append(all, job)
		}
	}
	logger.Infof("JSL definition loading completed. Number of jobs loaded: %d", len(all))
	return all, nil
}

func checkJob(job Job) error {
	if job.Name == "" {
		return exception.NewConfigurationError(loaderModule, "JSL job without 'name'")
	}
	if len(job.Nodes) == 0 {
		return exception.NewConfigurationError(loaderModule, "JSL job '%s' has no nodes", job.Name)
	}
	for i, n := range job.Nodes {
		if n.ID == "" {
			return exception.NewConfigurationError(loaderModule, "JSL job '%s': node %d has no 'id'", job.Name, i)
		}
		kinds := 0
		for _, set := range []bool{n.Tasklet != nil, n.Chunk != nil, n.Decision != nil} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			return exception.NewConfigurationError(loaderModule, "JSL job '%s': node '%s' must define exactly one of tasklet, chunk or decision", job.Name, n.ID)
		}
		if n.Next != "" && len(n.Transitions) > 0 {
			return exception.NewConfigurationError(loaderModule, "JSL job '%s': node '%s' mixes 'next' with 'transitions'", job.Name, n.ID)
		}
	}
	return nil
}

func (t Transition) String() string {
	return fmt.Sprintf("on=%s to=%s end=%t fail=%t stop=%t", t.On, t.To, t.End, t.Fail, t.Stop)
}
