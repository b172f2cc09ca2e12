// Package presence tracks which usernames are present in each room.
//
// A Directory is not safe for concurrent use. The server confines it to the
// hub's event loop, which serializes every join, leave and snapshot.
package presence

import (
	"github.com/Tyrowin/roomchat/internal/validate"
)

// roster is an insertion-ordered set of usernames. holders counts the live
// connections that hold each name, so a name stays present until the last
// of them leaves.
type roster struct {
	order   []string
	holders map[string]int
}

func newRoster() *roster {
	return &roster{holders: make(map[string]int)}
}

func (r *roster) add(username string) bool {
	n := r.holders[username]
	r.holders[username] = n + 1
	if n > 0 {
		return false
	}
	r.order = append(r.order, username)
	return true
}

func (r *roster) remove(username string) bool {
	n, ok := r.holders[username]
	if !ok {
		return false
	}
	if n > 1 {
		r.holders[username] = n - 1
		return false
	}
	delete(r.holders, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Directory maps each whitelisted room to its presence set.
type Directory struct {
	rooms   validate.Whitelist
	rosters map[string]*roster
}

// NewDirectory creates an empty directory over the given room whitelist.
func NewDirectory(rooms validate.Whitelist) *Directory {
	return &Directory{
		rooms:   rooms,
		rosters: make(map[string]*roster, rooms.Len()),
	}
}

// IsValidRoom reports whether room is in the whitelist.
func (d *Directory) IsValidRoom(room string) bool {
	return validate.IsValidRoom(d.rooms, room)
}

// Rooms returns the whitelisted room names.
func (d *Directory) Rooms() []string {
	return d.rooms.Names()
}

// Join adds one holder for username in room and reports whether the name
// became newly present. Rooms outside the whitelist are ignored.
func (d *Directory) Join(room, username string) bool {
	if !d.IsValidRoom(room) {
		return false
	}
	r, ok := d.rosters[room]
	if !ok {
		r = newRoster()
		d.rosters[room] = r
	}
	return r.add(username)
}

// Leave releases one holder for username in room and reports whether the
// name is no longer present.
func (d *Directory) Leave(room, username string) bool {
	r, ok := d.rosters[room]
	if !ok {
		return false
	}
	removed := r.remove(username)
	if len(r.order) == 0 {
		delete(d.rosters, room)
	}
	return removed
}

// Snapshot returns the usernames present in room in join order. The result
// is never nil.
func (d *Directory) Snapshot(room string) []string {
	r, ok := d.rosters[room]
	if !ok {
		return []string{}
	}
	return append(make([]string, 0, len(r.order)), r.order...)
}

// Counts returns the number of present usernames per whitelisted room.
func (d *Directory) Counts() map[string]int {
	counts := make(map[string]int, d.rooms.Len())
	for _, room := range d.rooms.Names() {
		counts[room] = 0
		if r, ok := d.rosters[room]; ok {
			counts[room] = len(r.order)
		}
	}
	return counts
}
