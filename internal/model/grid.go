package model

// DefaultSeatPrice is the flat price, in minor units, given to generated seats
// when the caller does not supply one.
const DefaultSeatPrice int64 = 10000

// GenerateGrid builds the full seat set for an event in row-major order:
// rows*cols AVAILABLE seats covering (1,1)..(rows,cols), all at price.
func GenerateGrid(eventID uint64, rows, cols int, price int64) []Seat {
	if rows <= 0 || cols <= 0 {
		return nil
	}
	seats := make([]Seat, 0, rows*cols)
	for r := 1; r <= rows; r++ {
		for c := 1; c <= cols; c++ {
			seats = append(seats, NewSeat(eventID, r, c, price))
		}
	}
	return seats
}
