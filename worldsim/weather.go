package worldsim

import (
	"hash/fnv"
	"math"

	"pkworld/movement"
)

// Weather is the weather object sent with a snapshot.
type Weather struct {
	Key        string            `json:"key"`
	Name       map[string]string `json:"name"`
	Note       map[string]string `json:"note,omitempty"`
	Climate    string            `json:"climate"`
	SpeedMul   float64           `json:"speed_mul"`
	FatigueMul float64           `json:"fatigue_mul"`
}

type weatherKind struct {
	key     string
	name    string
	note    string
	speed   float64
	fatigue float64
}

var weatherKinds = map[string]weatherKind{
	"clear": {"clear", "Clear", "", 1, 1},
	"rain":  {"rain", "Rain", "wet ground", 0.95, 1.1},
	"fog":   {"fog", "Fog", "", 0.95, 1},
	"wind":  {"wind", "Wind", "", 1, 1.05},
	"storm": {"storm", "Storm", "seek shelter", 0.8, 1.25},
	"snow":  {"snow", "Snowfall", "", 0.85, 1.15},
	"heat":  {"heat", "Heat", "drink water", 0.9, 1.2},
}

// weights per climate, in the order of weatherOrder
var weatherOrder = []string{"clear", "rain", "fog", "wind", "storm", "snow", "heat"}

var climateWeights = map[string][]int{
	"temperate":   {10, 5, 3, 3, 1, 0, 1},
	"continental": {8, 3, 3, 4, 1, 3, 0},
	"polar":       {6, 0, 3, 4, 1, 8, 0},
	"arid":        {10, 1, 0, 4, 1, 0, 6},
}

// WeatherBucket is how long a weather pick holds, in seconds.
const WeatherBucket = 1800.0

// WeatherAt picks the weather of c's chunk for the bucket containing now.
// The same chunk and bucket always give the same weather.
func (t *Terrain) WeatherAt(c movement.Cell, now float64) Weather {
	climate := t.Climate(c)
	cx, cy := chunkOf(c)
	bucket := int64(math.Floor(now / WeatherBucket))

	h := fnv.New32a()
	var buf [24]byte
	put := func(off int, v int64) {
		for i := 0; i < 8; i++ {
			buf[off+i] = byte(v >> (8 * i))
		}
	}
	put(0, int64(cx))
	put(8, int64(cy))
	put(16, bucket)
	_, _ = h.Write(buf[:])

	weights := climateWeights[climate]
	total := 0
	for _, w := range weights {
		total += w
	}
	r := int(h.Sum32() % uint32(total))
	key := "clear"
	for i, w := range weights {
		if r < w {
			key = weatherOrder[i]
			break
		}
		r -= w
	}
	k := weatherKinds[key]
	out := Weather{
		Key:        k.key,
		Name:       map[string]string{"en": k.name},
		Climate:    climate,
		SpeedMul:   k.speed,
		FatigueMul: k.fatigue,
	}
	if k.note != "" {
		out.Note = map[string]string{"en": k.note}
	}
	return out
}
