package eventbus

type EventAggregatorFunc func(c Publisher, name string, value float64)

type Publisher interface {
	Publish(topic string, value float64) error
}

// EventAggregator derives a topic from the topics it watches.
type EventAggregator struct {
	fun    EventAggregatorFunc
	topics []string
}

func (e *EventAggregator) GetTopics() []string {
	return e.topics
}

// RatioAggregator publishes done/total as a percentage on output each time
// done changes. A new total restarts the ratio at zero.
func RatioAggregator(done, total, output string) *EventAggregator {
	var doneValue, totalValue float64

	return &EventAggregator{
		topics: []string{done, total},
		fun: func(c Publisher, name string, value float64) {
			switch name {
			case total:
				totalValue = value
				doneValue = 0
			case done:
				doneValue = value
			default:
				return
			}
			if totalValue <= 0 {
				return
			}
			pct := doneValue / totalValue * 100
			if pct > 100 {
				pct = 100
			}
			c.Publish(output, pct)
		},
	}
}
