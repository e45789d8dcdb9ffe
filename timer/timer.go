// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

const defaultTick = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Callback func(id int64)
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs one-shot callbacks. Every task has an id that the owner
// keeps as its handle; RemoveTimer cancels a task that has not fired yet.
type TimerManager struct {
	queue   TimerQueue
	tasks   map[int64]*TimerTask
	mutex   sync.Mutex
	nextId  int64
	tick    time.Duration
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewTimerManager starts the scheduling loop. tick is the polling resolution;
// zero means 100ms.
func NewTimerManager(tick time.Duration) *TimerManager {
	if tick <= 0 {
		tick = defaultTick
	}
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		tasks:  make(map[int64]*TimerTask),
		nextId: 1,
		tick:   tick,
		stop:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.wg.Add(1)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay and returns the task id. The
// callback receives its own id so the owner can tell a stale firing apart.
func (m *TimerManager) AddTimer(delay time.Duration, callback func(id int64)) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	m.tasks[task.Id] = task
	return task.Id
}

// RemoveTimer cancels a pending task. It reports false when the task already
// fired or never existed.
func (m *TimerManager) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task, ok := m.tasks[timerId]
	if !ok {
		return false
	}
	heap.Remove(&m.queue, task.index)
	delete(m.tasks, timerId)
	return true
}

// Pending returns the number of scheduled tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.tasks)
}

// Stop ends the scheduling loop. Pending tasks are dropped.
func (m *TimerManager) Stop() {
	m.stopped.Do(func() {
		close(m.stop)
		m.wg.Wait()

		m.mutex.Lock()
		m.queue = m.queue[:0]
		m.tasks = make(map[int64]*TimerTask)
		m.mutex.Unlock()
	})
}

func (m *TimerManager) process() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			for _, task := range m.due(time.Now()) {
				go task.Callback(task.Id)
			}
		}
	}
}

func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		delete(m.tasks, task.Id)
		ready = append(ready, task)
	}
	return ready
}
