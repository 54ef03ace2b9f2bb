package internal

import (
	"sjsage522/adwatcher/services/cache"
	"sjsage522/adwatcher/services/metrics"
	"sjsage522/adwatcher/services/publisher"
	"sjsage522/adwatcher/services/store"
)

// Dependencies holds all service dependencies
type Dependencies struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     store.Store
	Metrics   *metrics.Metrics
}
