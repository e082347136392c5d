package db

import "time"

func SetNow(r *TransferRepository, now func() time.Time) {
	r.now = now
}
