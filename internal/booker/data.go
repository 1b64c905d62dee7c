package booker

import (
	"math/rand/v2"
	"time"
)

const dateLayout = "2006-01-02"

var (
	firstNames = []string{"Ada", "Grace", "Linus", "Margaret", "Ken", "Barbara", "Dennis", "Frances"}
	lastNames  = []string{"Lovelace", "Hopper", "Torvalds", "Hamilton", "Thompson", "Liskov", "Ritchie", "Allen"}
	needs      = []string{"", "Breakfast", "Late checkout", "Airport transfer"}
)

// Generator produces distinct booking payloads so parallel runs never touch
// each other's data.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a generator. A zero seed draws a random one.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: time.Now}
}

// Booking returns a booking for a stay of one to seven nights, starting
// within the next thirty days.
func (g *Generator) Booking() Booking {
	checkIn := g.now().UTC().AddDate(0, 0, 1+g.rng.IntN(30))
	checkOut := checkIn.AddDate(0, 0, 1+g.rng.IntN(7))
	return Booking{
		FirstName:   firstNames[g.rng.IntN(len(firstNames))],
		LastName:    lastNames[g.rng.IntN(len(lastNames))],
		TotalPrice:  100 + g.rng.IntN(900),
		DepositPaid: g.rng.IntN(2) == 1,
		Dates: BookingDates{
			CheckIn:  checkIn.Format(dateLayout),
			CheckOut: checkOut.Format(dateLayout),
		},
		AdditionalNeeds: needs[g.rng.IntN(len(needs))],
	}
}
