package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"medkit-service/pkg/config"
	"medkit-service/pkg/logger"
)

// Instance is the value stored under a worker's registration key.
type Instance struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Slots     int       `json:"slots"`
	StartedAt time.Time `json:"started_at"`
}

// ServiceKey 注册路径 /services/{name}/{id}
func ServiceKey(serviceName, serviceID string) string {
	return fmt.Sprintf("/services/%s/%s", serviceName, serviceID)
}

// ServiceRegistry registers one worker instance into etcd under a lease.
type ServiceRegistry struct {
	client   *clientv3.Client
	key      string
	instance Instance
	ttl      int64
	leaseID  clientv3.LeaseID
	cancel   context.CancelFunc
}

// NewServiceRegistry creates a new ServiceRegistry instance.
func NewServiceRegistry(etcdCfg config.EtcdConfig, svc config.ServiceRegistryConfig, instance Instance) (*ServiceRegistry, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   etcdCfg.Endpoints,
		DialTimeout: etcdCfg.DialTimeout,
		Username:    etcdCfg.Username,
		Password:    etcdCfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	ttl := int64(svc.TTL.Seconds())
	if ttl <= 0 {
		ttl = 30
	}
	return &ServiceRegistry{
		client:   client,
		key:      ServiceKey(svc.ServiceName, instance.ID),
		instance: instance,
		ttl:      ttl,
	}, nil
}

func (r *ServiceRegistry) Name() string { return "etcdRegistry" }

// Start registers the instance and keeps the lease alive until Stop.
func (r *ServiceRegistry) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)
	leaseResp, err := r.client.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	r.leaseID = leaseResp.ID

	value, err := json.Marshal(r.instance)
	if err != nil {
		return err
	}
	if _, err := r.client.Put(ctx, r.key, string(value), clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	ch, err := r.client.KeepAlive(ctx, r.leaseID)
	if err != nil {
		return fmt.Errorf("failed to keep alive lease: %w", err)
	}
	go func() {
		for ka := range ch {
			_ = ka
		}
		if ctx.Err() == nil {
			logger.Warnf("etcd keep alive channel closed key=%s", r.key)
		}
	}()

	logger.Infof("Service registered key=%s address=%s", r.key, r.instance.Address)
	return nil
}

// Stop revokes the lease and closes the client.
func (r *ServiceRegistry) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.leaseID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
			logger.Warnf("Failed to revoke lease key=%s error=%v", r.key, err)
		}
		cancel()
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close etcd client: %w", err)
	}
	logger.Infof("Service deregistered key=%s", r.key)
	return nil
}
