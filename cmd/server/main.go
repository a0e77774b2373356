package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"rod-contact/internal/assemble"
	"rod-contact/internal/contact"
	"rod-contact/internal/geom"
	"rod-contact/internal/server"
	"rod-contact/internal/shm"
	"rod-contact/internal/telemetry"
)

// params are the positional startup parameters handed over by the solver
// launcher, in the fixed order below.
type params struct {
	Port             string
	CollisionLimit   float64
	ContactStiffness float64
	ModelKey         string
	CeK              float64
	MuK              float64
	Radius           float64
	NumNodes         int
	Scale            float64
}

const usage = "usage: server <port> <collision_limit> <contact_stiffness> <model[:ce_k]> <mu_k> <radius> <num_nodes> <scale>"

func parseParams(args []string) (*params, error) {
	if len(args) != 8 {
		return nil, fmt.Errorf("expected 8 positional parameters, got %d\n%s", len(args), usage)
	}
	p := &params{Port: args[0]}

	var err error
	if p.CollisionLimit, err = strconv.ParseFloat(args[1], 64); err != nil {
		return nil, fmt.Errorf("collision_limit: %w", err)
	}
	if p.ContactStiffness, err = strconv.ParseFloat(args[2], 64); err != nil {
		return nil, fmt.Errorf("contact_stiffness: %w", err)
	}
	p.ModelKey, p.CeK, err = parseModelKey(args[3])
	if err != nil {
		return nil, err
	}
	if p.MuK, err = strconv.ParseFloat(args[4], 64); err != nil {
		return nil, fmt.Errorf("mu_k: %w", err)
	}
	if p.Radius, err = strconv.ParseFloat(args[5], 64); err != nil {
		return nil, fmt.Errorf("radius: %w", err)
	}
	if p.NumNodes, err = strconv.Atoi(args[6]); err != nil {
		return nil, fmt.Errorf("num_nodes: %w", err)
	}
	if p.Scale, err = strconv.ParseFloat(args[7], 64); err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}
	return p, nil
}

// parseModelKey accepts "lse:50" style selectors. A bare number keeps the
// historical launcher convention where this slot carried only the sharpness.
func parseModelKey(arg string) (key string, ceK float64, err error) {
	const defaultSharpness = 50.0
	if v, err := strconv.ParseFloat(arg, 64); err == nil {
		return "lse", v, nil
	}
	name, rest, found := strings.Cut(arg, ":")
	if !found {
		return name, defaultSharpness, nil
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return "", 0, fmt.Errorf("model selector %q: %w", arg, err)
	}
	return name, v, nil
}

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	p, err := parseParams(os.Args[1:])
	if err != nil {
		logger.Fatalf("[Server] bad startup parameters: %v", err)
	}

	// All lengths are normalized by the scale factor, matching what the
	// solver writes into the shared position buffer.
	radius := p.Radius * p.Scale
	contactLen := 2 * radius
	numEdges := p.NumNodes - 1

	mapper := shm.NewHeapMapper()
	defer mapper.Close()
	buffers, err := shm.Attach(mapper, p.Port, p.NumNodes)
	if err != nil {
		logger.Fatalf("[Server] attaching shared buffers: %v", err)
	}

	provider, err := contact.LoadProvider(p.ModelKey, p.CeK, contactLen)
	if err != nil {
		logger.Fatalf("[Server] %v", err)
	}

	index := geom.NewPairIndex(numEdges, geom.DefaultWindow)
	detector := geom.NewDetector(index, p.CollisionLimit, contactLen)
	model := contact.NewModel(provider, p.MuK, logger)
	assembler := assemble.New(buffers.Forces, buffers.Hessian)
	stiffness := contact.NewStiffnessController(contactLen, p.ContactStiffness)
	tm := telemetry.NewManager(logger)
	model.OnFallback = tm.RecordFallback

	sync := server.NewSynchronizer(buffers, detector, model, assembler, stiffness, tm, p.Scale, logger)

	ch, err := server.ListenWS(":"+p.Port, logger)
	if err != nil {
		logger.Fatalf("[Server] %v", err)
	}
	defer ch.Close()

	logger.Printf("[Server] contact core ready: %d edges, %d eligible pairs, contact_len %.4f",
		numEdges, index.Len(), contactLen)
	if err := sync.Run(ch); err != nil {
		logger.Fatalf("[Server] terminated: %v", err)
	}
}
