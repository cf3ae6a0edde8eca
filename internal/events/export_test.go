package events

func (p *Publisher) CloseChannel() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.ch.Close()
}
