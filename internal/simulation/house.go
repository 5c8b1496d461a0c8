package simulation

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/heating"
)

// integration step of the thermal model
const physicsStep = time.Minute

var emitterLag = map[heating.Type]time.Duration{
	heating.FloorHydronic: 3 * time.Hour,
	heating.Radiator:      30 * time.Minute,
	heating.Convector:     15 * time.Minute,
	heating.ForcedAir:     3 * time.Minute,
}

// EmitterLag returns the time constant of the heat emitter of the given heating type
func EmitterLag(heatingType heating.Type) time.Duration {
	if lag, ok := emitterLag[heatingType]; ok {
		return lag
	}
	return emitterLag[heating.DefaultType]
}

// Room is the thermal model of a single zone
type Room struct {
	Id          string
	Temperature float64
	// heat loss (1/h) per °C of difference to the outdoor temperature
	Loss float64
	// temperature rise (°C/h) at full duty with a warmed up emitter
	Power float64
	// time constant of the heat emitter
	Lag time.Duration

	duty    float64
	emitter float64
}

// SetDuty sets the heating duty (0..100) of the room
func (r *Room) SetDuty(duty float64) {
	r.duty = math.Max(0, math.Min(100, duty))
}

func (r *Room) Duty() float64 {
	return r.duty
}

// Link is a thermal connection between two rooms
type Link struct {
	A string
	B string
	// heat exchange (1/h) per °C of temperature difference
	Conductance float64
}

// House is an RC network of rooms exchanging heat with the outdoors and each other
type House struct {
	Outdoor float64
	Rooms   map[string]*Room
	Links   []Link
}

func NewHouse(outdoor float64) *House {
	return &House{
		Outdoor: outdoor,
		Rooms:   map[string]*Room{},
	}
}

func (h *House) AddRoom(room *Room) error {
	if len(room.Id) <= 0 {
		return fmt.Errorf("room without id")
	}
	if _, exists := h.Rooms[room.Id]; exists {
		return fmt.Errorf("duplicate room '%s'", room.Id)
	}
	h.Rooms[room.Id] = room
	return nil
}

func (h *House) AddLink(link Link) error {
	if _, ok := h.Rooms[link.A]; !ok {
		return fmt.Errorf("link references unknown room '%s'", link.A)
	}
	if _, ok := h.Rooms[link.B]; !ok {
		return fmt.Errorf("link references unknown room '%s'", link.B)
	}
	if link.A == link.B || link.Conductance < 0 {
		return fmt.Errorf("invalid link %s <-> %s", link.A, link.B)
	}
	h.Links = append(h.Links, link)
	return nil
}

// Advance integrates the model over the given duration
func (h *House) Advance(d time.Duration) {
	for d > 0 {
		step := physicsStep
		if d < step {
			step = d
		}
		h.step(step.Hours())
		d -= step
	}
}

func (h *House) step(hours float64) {
	delta := map[string]float64{}
	for id, room := range h.Rooms {
		if room.Lag > 0 {
			alpha := 1 - math.Exp(-hours/room.Lag.Hours())
			room.emitter += alpha * (room.duty/100 - room.emitter)
		} else {
			room.emitter = room.duty / 100
		}
		delta[id] = room.Power*room.emitter - room.Loss*(room.Temperature-h.Outdoor)
	}
	for _, link := range h.Links {
		a := h.Rooms[link.A]
		b := h.Rooms[link.B]
		flow := link.Conductance * (a.Temperature - b.Temperature)
		delta[link.A] -= flow
		delta[link.B] += flow
	}
	for id, room := range h.Rooms {
		room.Temperature += delta[id] * hours
	}
}

// LinksFromSeeds derives symmetric links from coupling seed coefficients,
// the conductance of a link is the larger seed of both directions.
func LinksFromSeeds(seeds map[coupling.Pair]float64) []Link {
	conductances := map[[2]string]float64{}
	for pair, value := range seeds {
		key := [2]string{pair.Source, pair.Target}
		if pair.Target < pair.Source {
			key = [2]string{pair.Target, pair.Source}
		}
		conductances[key] = math.Max(conductances[key], value)
	}

	var links []Link
	for key, conductance := range conductances {
		links = append(links, Link{A: key[0], B: key[1], Conductance: conductance})
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].A != links[j].A {
			return links[i].A < links[j].A
		}
		return links[i].B < links[j].B
	})
	return links
}
