package room

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	errs "okeyonline/internal/errors"
)

const maxCodeAttempts = 20

// GenerateRoomID hashes a fresh uuid into a 6 digit code until it finds
// one that is not taken.
func (u *RoomUseCase) GenerateRoomID(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := generateCode(uuid.New().String())

		taken, err := u.store.RoomIDExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free room code after %d attempts", errs.ErrInternal, maxCodeAttempts)
}

func generateCode(s string) string {
	h := md5.Sum([]byte(s))
	number := binary.BigEndian.Uint32(h[:4])
	return fmt.Sprintf("%06d", number%1000000)
}
