package main

import (
	"flag"
	"html/template"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flashsim/flashsim/simulator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client message types
type ClientMessage struct {
	Type   string               `json:"type"`
	Config *simulator.SimConfig `json:"config,omitempty"`
}

// Server message types
type ServerMessage struct {
	Type      string                     `json:"type"`
	Running   *bool                      `json:"running,omitempty"`
	Config    *simulator.SimConfig       `json:"config,omitempty"`
	Leveled   *simulator.InstanceMetrics `json:"leveled,omitempty"`
	Unleveled *simulator.InstanceMetrics `json:"unleveled,omitempty"`
}

// simState manages the simulation state and UI pacing
type simState struct {
	sim     *simulator.Simulator
	config  simulator.SimConfig
	running bool
	paused  bool
	mu      sync.Mutex
	stopCh  chan struct{}
}

func newSimState(config simulator.SimConfig) (*simState, error) {
	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return nil, err
	}
	return &simState{
		sim:    sim,
		config: config,
		stopCh: make(chan struct{}),
	}, nil
}

func (s *simState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.paused = false
}

func (s *simState) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// reset rebuilds the comparison pair from the current config
func (s *simState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, err := simulator.NewSimulator(s.config)
	if err != nil {
		return err
	}
	s.sim = sim
	s.running = false
	s.paused = false
	return nil
}

// updateConfig swaps the configuration and rebuilds the simulation
func (s *simState) updateConfig(config simulator.SimConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := config.Validate(); err != nil {
		return err
	}
	sim, err := simulator.NewSimulator(config)
	if err != nil {
		return err
	}
	s.config = config
	s.sim = sim
	s.running = false
	s.paused = false
	return nil
}

func (s *simState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

func (s *simState) getConfig() simulator.SimConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// step advances the comparison by n operations (called by the UI ticker)
func (s *simState) step(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.paused {
		return
	}
	for i := 0; i < n; i++ {
		if !s.sim.Step() {
			s.running = false
			return
		}
	}
}

func (s *simState) metrics() (leveled, unleveled simulator.InstanceMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sim.Leveled().Metrics(), s.sim.Unleveled().Metrics()
}

func (s *simState) stop() {
	close(s.stopCh)
}

// uiUpdateLoop periodically steps the simulation and pushes both instances'
// metrics to the client. Runs in its own goroutine and controls UI pacing.
func uiUpdateLoop(conn *safeConn, state *simState, stepsPerTick int) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-state.stopCh:
			log.Println("UI update loop stopping")
			return

		case <-ticker.C:
			if !state.isRunning() {
				continue
			}
			state.step(stepsPerTick)
			updatePrometheusMetrics(state)

			leveled, unleveled := state.metrics()
			msg := ServerMessage{
				Type:      "metrics",
				Leveled:   &leveled,
				Unleveled: &unleveled,
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("Error sending metrics: %v", err)
				return
			}
		}
	}
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func sendStatus(conn *safeConn, state *simState, running bool) {
	cfg := state.getConfig()
	msg := ServerMessage{
		Type:    "status",
		Running: &running,
		Config:  &cfg,
	}
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("Error sending status: %v", err)
	}
}

func handleWebSocket(stepsPerTick int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("Error upgrading connection: %v", err)
			return
		}
		defer conn.Close()

		safeConn := &safeConn{Conn: conn}
		log.Println("Client connected")

		state, err := newSimState(simulator.DefaultConfig())
		if err != nil {
			log.Printf("Error creating simulator: %v", err)
			return
		}

		sendStatus(safeConn, state, false)
		go uiUpdateLoop(safeConn, state, stepsPerTick)

		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("Error reading message: %v", err)
				}
				break
			}

			log.Printf("Received command: %s", msg.Type)

			switch msg.Type {
			case "start":
				state.start()
				sendStatus(safeConn, state, true)

			case "pause":
				state.pause()
				sendStatus(safeConn, state, false)

			case "reset":
				if err := state.reset(); err != nil {
					log.Printf("Error resetting simulator: %v", err)
				}
				sendStatus(safeConn, state, false)

			case "config_update":
				if msg.Config == nil {
					break
				}
				if err := state.updateConfig(*msg.Config); err != nil {
					log.Printf("Error updating config: %v", err)
				} else {
					sendStatus(safeConn, state, false)
				}
			}
		}

		state.stop()
		log.Println("Client disconnected")
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>flashsim</title></head>
<body>
<h1>Flash wear-leveling simulator</h1>
<button onclick="send('start')">Start</button>
<button onclick="send('pause')">Pause</button>
<button onclick="send('reset')">Reset</button>
<pre id="out"></pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
const send = (type) => ws.send(JSON.stringify({type}));
ws.onmessage = (ev) => {
  const msg = JSON.parse(ev.data);
  if (msg.type === "metrics") {
    document.getElementById("out").textContent =
      "leveled:   dead " + msg.leveled.deadPages + "/" + msg.leveled.totalPages +
      " spread " + msg.leveled.wearSpread + "\n" +
      "baseline:  dead " + msg.unleveled.deadPages + "/" + msg.unleveled.totalPages +
      " spread " + msg.unleveled.wearSpread;
  }
};
</script>
</body>
</html>`))

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		log.Printf("Error executing template: %v", err)
	}
}

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	stepsPerTick := flag.Int("steps", 200, "Operations simulated per UI tick")
	flag.Parse()

	initPrometheusMetrics()

	http.HandleFunc("/", serveHome)
	http.HandleFunc("/ws", handleWebSocket(*stepsPerTick))
	http.Handle("/metrics", metricsHandler())

	log.Printf("Server starting on http://localhost%s", *addr)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}
