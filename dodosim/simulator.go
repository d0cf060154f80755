package dodosim

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	uuid "github.com/nu7hatch/gouuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dodohome/dodo/common/endpoints"
	"github.com/dodohome/dodo/common/stats"
	"github.com/dodohome/dodo/config"
	"github.com/dodohome/dodo/dispatch"
	"github.com/dodohome/dodo/taskheap"
)

const (
	// One sampled task in every expireSampleEvery gets handed to the reaper,
	// which expires it if no worker claimed it first.
	expireSampleEvery = 100
	expireInterval    = 2 * time.Second
	refreshInterval   = 5 * time.Second
)

/*
Simulator drives one in-process Dispatcher with synthetic load. Submitter
goroutines feed rate limited task streams, worker goroutines claim and finish
batches, a reaper expires a sample of tasks that nobody claimed, and a refresh
loop remaps queued tasks onto current groups. Progress is observable over
http while the sim runs.
*/
type Simulator struct {
	// cli args
	configName  string
	httpAddr    string
	durationSec int
	numTasks    int

	// externals
	cfg        *config.JSONConfigs
	heap       *taskheap.TasksHeap
	dispatcher *dispatch.Dispatcher
	stat       stats.StatsReceiver
	server     *endpoints.StatusServer

	nextTaskID int64
	expireCh   chan int64
}

type Args struct {
	ConfigName  string
	HTTPAddr    string
	DurationSec int
	NumTasks    int // bench mode: drain this many tasks and stop
}

func MakeSimulator(a *Args) (*Simulator, error) {
	cfg, err := config.GetConfigs(a.ConfigName)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		configName:  a.ConfigName,
		httpAddr:    a.HTTPAddr,
		durationSec: a.DurationSec,
		numTasks:    a.NumTasks,
		cfg:         cfg,
		expireCh:    make(chan int64, 1000),
	}
	if s.durationSec == 0 {
		s.durationSec = cfg.Sim.DurationSec
	}

	if s.numTasks > 0 {
		// A bench renders once after the run, so serve live values instead of
		// the latched window.
		stat, _ := stats.NewCustomStatsReceiver(nil, 0)
		s.stat = stat.Scope("dodosim").Precision(time.Millisecond)
	} else {
		s.stat = endpoints.MakeStatsReceiver("dodosim").Precision(time.Millisecond)
	}

	mapper, err := cfg.GroupMap.CreateMapper()
	if err != nil {
		return nil, err
	}
	s.heap, err = cfg.Heap.Create(mapper, s.stat.Scope("taskheap"))
	if err != nil {
		return nil, err
	}
	s.dispatcher = dispatch.NewDispatcher(s.heap, s.stat.Scope("dispatch"))

	s.server = endpoints.NewStatusServer(s.httpAddr, s.stat)
	s.server.AddInspector("dispatch", func() ([]byte, error) {
		return json.Marshal(s.dispatcher.CurrentStatus())
	})

	rand.Seed(time.Now().UnixNano())
	return s, nil
}

// RunSim runs the configured load until the duration elapses or a signal
// arrives, then reports the final dispatcher status.
func (s *Simulator) RunSim() error {
	log.Infof("starting sim with config %s:%s", s.configName, s.cfg)
	start := time.Now()

	go func() {
		log.Infof("serving http on %s", s.httpAddr)
		if err := s.server.Serve(); err != nil {
			log.Errorf("http server stopped: %v", err)
		}
	}()

	ctx := context.Background()
	var cancel context.CancelFunc
	if s.durationSec > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.durationSec)*time.Second)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("got signal %v, stopping sim", sig)
		cancel()
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Sim.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		if err := s.dispatcher.RegisterWorker(workerID, s.workerCapacity(i)); err != nil {
			return err
		}
		wg.Add(1)
		go s.workerLoop(ctx, &wg, workerID)
	}
	for i := 0; i < s.cfg.Sim.Submitters; i++ {
		wg.Add(1)
		go s.submitLoop(ctx, &wg)
	}
	wg.Add(2)
	go s.reaperLoop(ctx, &wg)
	go s.refreshLoop(ctx, &wg)

	wg.Wait()

	status, err := json.MarshalIndent(s.dispatcher.CurrentStatus(), "", "  ")
	if err != nil {
		return err
	}
	log.Infof("sim finished after %v, final status:\n%s", time.Since(start), status)
	return nil
}

// Workers prefer the group matching their index when the mapper spreads
// submitters over a known number of groups.
func (s *Simulator) workerCapacity(i int) dispatch.WorkerCapacity {
	caps := dispatch.WorkerCapacity{MaxByType: s.cfg.Sim.WorkerMaxByType}
	if n := s.cfg.GroupMap.NumGroups; n > 0 {
		caps.GroupPrefs = []int{i % n}
	}
	return caps
}

func (s *Simulator) submitLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	id, err := uuid.NewV4()
	if err != nil {
		log.Errorf("generating submitter id: %v", err)
		return
	}
	submitterID := fmt.Sprintf("submitter-%s", id.String()[:8])

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Sim.SubmitRate), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		taskID := atomic.AddInt64(&s.nextTaskID, 1)
		taskType := s.cfg.Sim.TaskTypes[rand.Intn(len(s.cfg.Sim.TaskTypes))]
		if err := s.dispatcher.Submit(taskID, taskType, submitterID); err != nil {
			log.Errorf("submit %d failed: %v", taskID, err)
			continue
		}
		if taskID%expireSampleEvery == 0 {
			select {
			case s.expireCh <- taskID:
			default:
			}
		}
	}
}

func (s *Simulator) workerLoop(ctx context.Context, wg *sync.WaitGroup, workerID string) {
	defer wg.Done()
	defer s.dispatcher.DeregisterWorker(workerID)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 0

	for ctx.Err() == nil {
		taskIDs, err := s.dispatcher.NextTasks(workerID, s.cfg.Sim.ClaimMax)
		if err != nil {
			log.Errorf("%s claim failed: %v", workerID, err)
			return
		}
		if len(taskIDs) == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(b.NextBackOff()):
			}
			continue
		}
		b.Reset()

		// Pretend to run the batch, abandoning it if the sim ends first.
		// Deregistering requeues whatever this worker still had running.
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(1+rand.Intn(10)) * time.Millisecond):
		}
		for _, taskID := range taskIDs {
			if err := s.dispatcher.TaskFinished(workerID, taskID); err != nil {
				log.Errorf("%s finishing %d: %v", workerID, taskID, err)
			}
		}
	}
}

func (s *Simulator) reaperLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(expireInterval)
	defer ticker.Stop()

	pending := []int64{}
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-s.expireCh:
			pending = append(pending, taskID)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			log.Debugf("expiring %d sampled tasks", len(pending))
			s.dispatcher.ExpireTasks(pending)
			pending = nil
		}
	}
}

func (s *Simulator) refreshLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatcher.RefreshGroups()
		}
	}
}

// RunBench floods the dispatcher with a fixed batch of tasks, drains it as
// fast as the workers can claim, and reports throughput plus the rendered
// stats. Unlike RunSim nothing is paced and nothing expires.
func (s *Simulator) RunBench() error {
	if s.numTasks <= 0 {
		return fmt.Errorf("bench needs a positive task count, got %d", s.numTasks)
	}
	log.Infof("starting bench with config %s, %d tasks:%s", s.configName, s.numTasks, s.cfg)

	go func() {
		log.Infof("serving http on %s", s.httpAddr)
		if err := s.server.Serve(); err != nil {
			log.Errorf("http server stopped: %v", err)
		}
	}()

	for i := 0; i < s.cfg.Sim.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		if err := s.dispatcher.RegisterWorker(workerID, s.workerCapacity(i)); err != nil {
			return err
		}
	}

	start := time.Now()
	total := int64(s.numTasks)
	var finished int64
	var wg sync.WaitGroup

	for i := 0; i < s.cfg.Sim.Submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := uuid.NewV4()
			if err != nil {
				log.Errorf("generating submitter id: %v", err)
				return
			}
			submitterID := fmt.Sprintf("submitter-%s", id.String()[:8])
			for {
				taskID := atomic.AddInt64(&s.nextTaskID, 1)
				if taskID > total {
					return
				}
				taskType := s.cfg.Sim.TaskTypes[rand.Intn(len(s.cfg.Sim.TaskTypes))]
				if err := s.dispatcher.Submit(taskID, taskType, submitterID); err != nil {
					log.Errorf("submit %d failed: %v", taskID, err)
				}
			}
		}()
	}

	for i := 0; i < s.cfg.Sim.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.dispatcher.DeregisterWorker(workerID)
			for atomic.LoadInt64(&finished) < total {
				taskIDs, err := s.dispatcher.NextTasks(workerID, s.cfg.Sim.ClaimMax)
				if err != nil {
					log.Errorf("%s claim failed: %v", workerID, err)
					return
				}
				if len(taskIDs) == 0 {
					time.Sleep(time.Millisecond)
					continue
				}
				for _, taskID := range taskIDs {
					if err := s.dispatcher.TaskFinished(workerID, taskID); err != nil {
						log.Errorf("%s finishing %d: %v", workerID, taskID, err)
					}
				}
				atomic.AddInt64(&finished, int64(len(taskIDs)))
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	log.Infof("bench finished: %d tasks in %v, %.0f tasks/sec",
		s.numTasks, elapsed, float64(s.numTasks)/elapsed.Seconds())
	fmt.Printf("%s\n", s.stat.Render(true))
	return nil
}
