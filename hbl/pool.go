package hbl

import (
	"sync"
)

//Task is a unit of work executed by a Pool worker.
type Task interface {
	Run()
}

//Pool is a fixed-size worker pool. Close it after the last AddTask and call
//WaitAll to block until every submitted task has finished.
type Pool struct {
	tasks chan Task
	wg    sync.WaitGroup
}

//NewPool starts workersNum goroutines consuming tasks.
func NewPool(workersNum int) *Pool {
	p := &Pool{tasks: make(chan Task, workersNum)}
	for i := 0; i < workersNum; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task.Run()
			}
		}()
	}
	return p
}

//AddTask submits a task. It blocks while all workers are busy.
func (p *Pool) AddTask(t Task) {
	p.tasks <- t
}

//Close signals that no more tasks will be added.
func (p *Pool) Close() {
	close(p.tasks)
}

//WaitAll blocks until all workers have drained the task channel.
func (p *Pool) WaitAll() {
	p.wg.Wait()
}
