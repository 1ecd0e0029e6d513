/*
Copyright 2025 The Aibrix Team.

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

package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// RedisLister is the subset of the redis client used for sampling.
type RedisLister interface {
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// RedisBacklogSource reports the length of a redis list used as a work queue.
// The length is an instantaneous gauge, so the window is ignored. An empty
// list is a real zero, not missing data.
type RedisBacklogSource struct {
	client RedisLister
	key    string
}

func NewRedisBacklogSource(client RedisLister, key string) *RedisBacklogSource {
	return &RedisBacklogSource{client: client, key: key}
}

func (s *RedisBacklogSource) Sample(ctx context.Context, _ time.Duration) (types.MetricSample, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return types.NoData, fmt.Errorf("failed to read backlog of redis list %s: %w", s.key, err)
	}
	return types.Sample(float64(n)), nil
}
