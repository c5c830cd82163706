// Package eventbus fans out numeric status updates (parse progress, config
// size) to in process subscribers and websocket clients.
package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/roffe/elevtrace/pkg/debug"
)

const (
	TopicSectionsTotal = "trace.sections.total"
	TopicSectionsDone  = "trace.sections.done"
	TopicProgress      = "trace.progress"
	TopicLoading       = "session.loading"
	TopicConfigItems   = "config.items"
)

var ErrChannelFull = errors.New("publish channel full")

type Config struct {
	IncomingBuffer    int
	SubscribeBuffer   int
	UnsubscribeBuffer int
	ChannelBuffer     int
	CacheTTL          time.Duration
}

var DefaultConfig = &Config{
	IncomingBuffer:    1000,
	SubscribeBuffer:   100,
	UnsubscribeBuffer: 100,
	ChannelBuffer:     50,
	CacheTTL:          time.Minute,
}

type EBusMessage struct {
	Topic string  `json:"topic"`
	Data  float64 `json:"data"`
}

type Controller struct {
	subs     sync.Map
	subsAll  []chan EBusMessage
	incoming chan EBusMessage
	sub      chan newSub
	subAll   chan chan EBusMessage
	unsub    chan chan float64
	unsubAll chan chan EBusMessage
	cache    *ttlcache.Cache[string, float64]

	aggregatorIndex map[string][]*EventAggregator
	aggregatorLock  sync.RWMutex

	channelBuffer int

	closeOnce sync.Once
	quit      chan struct{}
	done      chan struct{}
}

type newSub struct {
	topic string
	resp  chan float64
}

func New(cfg *Config) *Controller {
	if cfg == nil {
		cfg = DefaultConfig
	}

	c := &Controller{
		incoming:        make(chan EBusMessage, cfg.IncomingBuffer),
		sub:             make(chan newSub, cfg.SubscribeBuffer),
		subAll:          make(chan chan EBusMessage, cfg.SubscribeBuffer),
		unsub:           make(chan chan float64, cfg.UnsubscribeBuffer),
		unsubAll:        make(chan chan EBusMessage, cfg.UnsubscribeBuffer),
		cache:           ttlcache.New[string, float64](ttlcache.WithTTL[string, float64](cfg.CacheTTL)),
		channelBuffer:   cfg.ChannelBuffer,
		quit:            make(chan struct{}),
		done:            make(chan struct{}),
		aggregatorIndex: make(map[string][]*EventAggregator),
	}

	c.RegisterAggregator(
		RatioAggregator(TopicSectionsDone, TopicSectionsTotal, TopicProgress),
	)

	go c.run()

	return c
}

func (e *Controller) run() {
	defer close(e.done)
	for {
		select {
		case <-e.quit:
			e.cleanup()
			return
		case msg := <-e.incoming:
			e.handleMessage(msg)
		case sub := <-e.sub:
			e.handleSubscription(sub)
		case ch := <-e.subAll:
			e.handleSubscribeAll(ch)
		case unsub := <-e.unsub:
			e.handleUnsubscription(unsub)
		case ch := <-e.unsubAll:
			e.handleUnsubscribeAll(ch)
		}
	}
}

func (e *Controller) handleMessage(msg EBusMessage) {
	e.cache.Set(msg.Topic, msg.Data, ttlcache.DefaultTTL)
	if value, ok := e.subs.Load(msg.Topic); ok {
		if subs, ok := value.([]chan float64); ok {
			for _, sub := range subs {
				select {
				case sub <- msg.Data:
				default:
					debug.Logger.Debugf("channel full for topic %s", msg.Topic)
				}
			}
		}
	}
	for _, ch := range e.subsAll {
		select {
		case ch <- msg:
		default:
			debug.Logger.Debugf("all-topics channel full, dropped %s", msg.Topic)
		}
	}
	e.aggregatorLock.RLock()
	if aggregators, exists := e.aggregatorIndex[msg.Topic]; exists {
		for _, agg := range aggregators {
			agg.fun(e, msg.Topic, msg.Data)
		}
	}
	e.aggregatorLock.RUnlock()
}

func (e *Controller) handleSubscription(sub newSub) {
	var subs []chan float64
	if value, ok := e.subs.Load(sub.topic); ok {
		subs = value.([]chan float64)
	}
	subs = append(subs, sub.resp)
	e.subs.Store(sub.topic, subs)

	// Late subscribers start from the last known value.
	if item := e.cache.Get(sub.topic); item != nil {
		select {
		case sub.resp <- item.Value():
		default:
		}
	}
}

func (e *Controller) handleSubscribeAll(ch chan EBusMessage) {
	e.subsAll = append(e.subsAll, ch)
	for k, v := range e.cache.Items() {
		select {
		case ch <- EBusMessage{Topic: k, Data: v.Value()}:
		default:
		}
	}
}

func (e *Controller) handleUnsubscription(unsub chan float64) {
	e.subs.Range(func(key, value interface{}) bool {
		topic := key.(string)
		subs := value.([]chan float64)
		for i, sub := range subs {
			if sub == unsub {
				newSubs := append(subs[:i:i], subs[i+1:]...)
				if len(newSubs) == 0 {
					e.subs.Delete(topic)
				} else {
					e.subs.Store(topic, newSubs)
				}
				close(unsub)
				return false
			}
		}
		return true
	})
}

func (e *Controller) handleUnsubscribeAll(ch chan EBusMessage) {
	for i, sub := range e.subsAll {
		if sub == ch {
			e.subsAll = append(e.subsAll[:i:i], e.subsAll[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close stops the run loop and closes every subscriber channel.
func (e *Controller) Close() {
	e.closeOnce.Do(func() {
		close(e.quit)
	})
	<-e.done
}

func (e *Controller) cleanup() {
	e.cache.DeleteAll()
	e.subs.Range(func(key, value interface{}) bool {
		for _, sub := range value.([]chan float64) {
			close(sub)
		}
		e.subs.Delete(key)
		return true
	})
	for _, ch := range e.subsAll {
		close(ch)
	}
	e.subsAll = nil
}

func (e *Controller) RegisterAggregator(aggs ...*EventAggregator) {
	e.aggregatorLock.Lock()
	defer e.aggregatorLock.Unlock()
	for _, agg := range aggs {
		for _, topic := range agg.GetTopics() {
			e.aggregatorIndex[topic] = append(e.aggregatorIndex[topic], agg)
		}
	}
}

func (e *Controller) Publish(topic string, data float64) error {
	select {
	case e.incoming <- EBusMessage{Topic: topic, Data: data}:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrChannelFull, topic)
	}
}

// SubscribeFunc calls fn for every value published on topic until cancel
// is called.
func (e *Controller) SubscribeFunc(topic string, fn func(float64)) (cancel func()) {
	respChan := e.Subscribe(topic)
	go func() {
		for v := range respChan {
			safeCall(topic, fn, v)
		}
	}()
	cancel = func() {
		e.Unsubscribe(respChan)
	}
	return
}

func safeCall(topic string, fn func(float64), v float64) {
	defer func() {
		if r := recover(); r != nil {
			debug.Logger.WithField("topic", topic).Errorf("subscriber panic: %v", r)
		}
	}()
	fn(v)
}

func (e *Controller) Subscribe(topic string) chan float64 {
	respChan := make(chan float64, 10)
	e.sub <- newSub{topic: topic, resp: respChan}
	return respChan
}

func (e *Controller) Unsubscribe(channel chan float64) {
	select {
	case e.unsub <- channel:
	case <-e.done:
	}
}

// SubscribeAll returns a channel receiving every message on every topic,
// starting with the cached values.
func (e *Controller) SubscribeAll() chan EBusMessage {
	ch := make(chan EBusMessage, e.channelBuffer)
	e.subAll <- ch
	return ch
}

func (e *Controller) UnsubscribeAll(ch chan EBusMessage) {
	select {
	case e.unsubAll <- ch:
	case <-e.done:
	}
}

func (e *Controller) Values() map[string]float64 {
	values := make(map[string]float64)
	for k, v := range e.cache.Items() {
		values[k] = v.Value()
	}
	return values
}
