/*
	Copyright 2023 Loophole Labs

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		   http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/

// Package loop is a single-goroutine cooperative scheduler. Each cycle runs
// every Hook once and then every unfinished Task once; nothing inside a cycle
// is allowed to block.
package loop

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	DefaultInterval = time.Microsecond * 100
)

// Hook is polled once per cycle and returns how much work it found.
// cohort.Poller is a Hook.
type Hook interface {
	Poll() int
}

// Task is resumed once per cycle until it returns true.
type Task func() bool

type Loop struct {
	interval time.Duration
	hooks    []Hook
	tasks    []Task
	cycles   uint64
	log      logrus.FieldLogger
}

func New(interval time.Duration, logger logrus.FieldLogger) *Loop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		interval: interval,
		log:      logger.WithField("logger", "cohort/loop"),
	}
}

func (l *Loop) Add(h Hook) {
	l.hooks = append(l.hooks, h)
}

func (l *Loop) Go(t Task) {
	l.tasks = append(l.tasks, t)
}

// Pending returns the number of unfinished tasks.
func (l *Loop) Pending() int {
	return len(l.tasks)
}

func (l *Loop) Cycles() uint64 {
	return l.cycles
}

// RunOnce runs a single cycle and returns the work reported by the hooks
// plus the number of tasks that finished.
func (l *Loop) RunOnce() int {
	l.cycles++
	work := 0
	for _, h := range l.hooks {
		work += h.Poll()
	}

	current := l.tasks
	l.tasks = nil
	kept := current[:0]
	for _, t := range current {
		if t() {
			work++
			continue
		}
		kept = append(kept, t)
	}
	clear(current[len(kept):])
	// Tasks started during this cycle run from the next one.
	l.tasks = append(kept, l.tasks...)
	return work
}

// Run cycles until every task has finished or ctx ends. Idle cycles are
// separated by the loop interval.
func (l *Loop) Run(ctx context.Context) error {
	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for len(l.tasks) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.RunOnce() > 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			l.log.Debugf("loop stopped with %d tasks pending after %d cycles", len(l.tasks), l.cycles)
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}
