package broker

// IPublisher publishes string payloads to one topic.
type IPublisher interface {
	PublishMessage(message string, retained bool) error
}

// Publisher binds a Session to a single topic.
type Publisher struct {
	session *Session
	topic   string
}

// NewPublisher creates a Publisher for topic on the shared session.
func NewPublisher(session *Session, topic string) *Publisher {
	return &Publisher{session: session, topic: topic}
}

func (p *Publisher) Topic() string { return p.topic }

// PublishMessage publishes message at QoS 0.
func (p *Publisher) PublishMessage(message string, retained bool) error {
	return p.session.Publish(p.topic, message, retained)
}
