package jobs

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/redis/go-redis/v9"
)

// Registry tracks live progress observers per job id. Membership lives in a
// Redis set with the same TTL discipline as job results, so a registry entry
// never outlives the job it refers to; events travel over Redis pub/sub so
// workers and web processes do not have to share an address space. The actual
// connection handles are process-local by nature.
type Registry struct {
	rdb *redis.Client
	ttl time.Duration

	mu    sync.Mutex
	conns map[string]map[string]*websocket.Conn // jobID -> connID -> conn
	subs  map[string]*redis.PubSub              // jobID -> active subscription
}

func NewRegistry(rdb *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		rdb:   rdb,
		ttl:   ttl,
		conns: make(map[string]map[string]*websocket.Conn),
		subs:  make(map[string]*redis.PubSub),
	}
}

// Add registers an observer connection for a job id. The first observer of a
// job opens the pub/sub subscription; later ones share it. Observers joining
// mid-flight receive only future updates, there is no replay.
func (r *Registry) Add(ctx context.Context, jobID, connID string, conn *websocket.Conn) error {
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, WatchersKey(jobID), connID)
	pipe.Expire(ctx, WatchersKey(jobID), r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[jobID] == nil {
		r.conns[jobID] = make(map[string]*websocket.Conn)
	}
	r.conns[jobID][connID] = conn

	if _, ok := r.subs[jobID]; !ok {
		sub := r.rdb.Subscribe(context.Background(), EventChannel(jobID))
		r.subs[jobID] = sub
		go r.forward(jobID, sub)
	}
	return nil
}

// Remove drops one observer. Pruning happens on the observer's own disconnect,
// never from the publish path. The last observer closes the subscription.
func (r *Registry) Remove(ctx context.Context, jobID, connID string) {
	if err := r.rdb.SRem(ctx, WatchersKey(jobID), connID).Err(); err != nil {
		log.Printf("[WS-REGISTRY] Failed to remove watcher %s for job %s: %v", connID, jobID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conns, ok := r.conns[jobID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.conns, jobID)
			if sub, ok := r.subs[jobID]; ok {
				sub.Close()
				delete(r.subs, jobID)
			}
		}
	}
}

// Watchers lists the registered observer ids for a job
func (r *Registry) Watchers(ctx context.Context, jobID string) ([]string, error) {
	return r.rdb.SMembers(ctx, WatchersKey(jobID)).Result()
}

// Publish pushes a progress record to every observer of the job. Observers see
// the same collapsed status the polling endpoint reports. Best effort: a
// publish failure is logged and must never block a stage transition.
func (r *Registry) Publish(ctx context.Context, rec ProgressRecord) {
	payload, err := json.Marshal(rec.Public())
	if err != nil {
		log.Printf("[WS-REGISTRY] Failed to encode progress for job %s: %v", rec.JobID, err)
		return
	}
	if err := r.rdb.Publish(ctx, EventChannel(rec.JobID), payload).Err(); err != nil {
		log.Printf("[WS-REGISTRY] Failed to publish progress for job %s: %v", rec.JobID, err)
	}
}

// forward is the single writer for all local connections of one job. A failed
// write is logged and skipped; the connection is only pruned when its own
// read loop notices the disconnect and calls Remove.
func (r *Registry) forward(jobID string, sub *redis.PubSub) {
	for msg := range sub.Channel() {
		r.mu.Lock()
		targets := make([]*websocket.Conn, 0, len(r.conns[jobID]))
		for _, conn := range r.conns[jobID] {
			targets = append(targets, conn)
		}
		r.mu.Unlock()

		for _, conn := range targets {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Printf("[WS-REGISTRY] Dropped progress push for job %s: %v", jobID, err)
			}
		}
	}
}
