package fetch

import (
	"math/rand"
	"sync"
)

// AgentPool rotates browser user-agent strings across requests so a run
// does not present a single fingerprint to the court website.
type AgentPool struct {
	agents []string
	mu     sync.Mutex
	rng    *rand.Rand
}

func NewAgentPool() *AgentPool {
	return &AgentPool{
		agents: []string{
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36",
		},
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
}

// Get returns a random user agent string.
func (p *AgentPool) Get() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.agents[p.rng.Intn(len(p.agents))]
}
