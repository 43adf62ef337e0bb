package directory

import "errors"

var (
	// ErrDeviceNotFound is returned when no device matches rack, board and uid.
	ErrDeviceNotFound = errors.New("directory: device not found")

	// ErrRackNotFound is returned when no device references the rack.
	ErrRackNotFound = errors.New("directory: rack not found")

	// ErrBoardNotFound is returned when no device in the rack references the board.
	ErrBoardNotFound = errors.New("directory: board not found")

	// ErrRebuild is returned when the first rebuild fails and there is no
	// previous snapshot to serve.
	ErrRebuild = errors.New("directory: rebuild failed")
)
