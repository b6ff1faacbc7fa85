package redisstore

import (
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

var errCorruptRecord = errors.New("corrupt account record")

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMilli(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, errCorruptRecord
	}
	return time.UnixMilli(ms).UTC(), nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeRecord(rec account.Record) []interface{} {
	out := []interface{}{
		fieldID, rec.ID,
		fieldEmail, rec.Email,
		fieldName, rec.Name,
		fieldRole, string(rec.Role),
		fieldStatus, string(rec.Status),
		fieldVerified, boolString(rec.Verified),
		fieldVersion, strconv.FormatUint(rec.Version, 10),
		fieldCreatedAt, unixMilli(rec.CreatedAt),
		fieldUpdatedAt, unixMilli(rec.UpdatedAt),
		fieldPasswordHash, rec.PasswordHash,
	}
	if rec.OTP != nil {
		out = append(out, fieldOTPHash, rec.OTP.Hash, fieldOTPExpiresAt, unixMilli(rec.OTP.ExpiresAt))
	}
	if rec.Reset != nil {
		out = append(out, fieldResetHash, rec.Reset.Hash, fieldResetExpiresAt, unixMilli(rec.Reset.ExpiresAt))
	}
	return out
}

// encodePatch splits a patch into HSET pairs and HDEL fields.
func encodePatch(p account.Patch) (set []interface{}, del []interface{}) {
	if p.Verified != nil {
		set = append(set, fieldVerified, boolString(*p.Verified))
	}
	if p.Status != nil {
		set = append(set, fieldStatus, string(*p.Status))
	}
	if p.PasswordHash != nil {
		set = append(set, fieldPasswordHash, *p.PasswordHash)
	}
	switch {
	case p.OTP != nil:
		set = append(set, fieldOTPHash, p.OTP.Hash, fieldOTPExpiresAt, unixMilli(p.OTP.ExpiresAt))
	case p.ClearOTP:
		del = append(del, fieldOTPHash, fieldOTPExpiresAt)
	}
	switch {
	case p.Reset != nil:
		set = append(set, fieldResetHash, p.Reset.Hash, fieldResetExpiresAt, unixMilli(p.Reset.ExpiresAt))
	case p.ClearReset:
		del = append(del, fieldResetHash, fieldResetExpiresAt)
	}
	return set, del
}

func decodeRecord(fields map[string]string) (account.Account, account.Secrets, error) {
	var (
		acc account.Account
		sec account.Secrets
		err error
	)

	acc.ID = fields[fieldID]
	acc.Email = fields[fieldEmail]
	acc.Name = fields[fieldName]
	acc.Role = account.Role(fields[fieldRole])
	acc.Status = account.Status(fields[fieldStatus])
	acc.Verified = fields[fieldVerified] == "1"
	if acc.ID == "" || acc.Email == "" {
		return account.Account{}, account.Secrets{}, errCorruptRecord
	}

	if acc.Version, err = strconv.ParseUint(fields[fieldVersion], 10, 64); err != nil {
		return account.Account{}, account.Secrets{}, errCorruptRecord
	}
	if acc.CreatedAt, err = parseMilli(fields[fieldCreatedAt]); err != nil {
		return account.Account{}, account.Secrets{}, err
	}
	if acc.UpdatedAt, err = parseMilli(fields[fieldUpdatedAt]); err != nil {
		return account.Account{}, account.Secrets{}, err
	}

	sec.PasswordHash = fields[fieldPasswordHash]
	if sec.OTP, err = decodeChallenge(fields, fieldOTPHash, fieldOTPExpiresAt); err != nil {
		return account.Account{}, account.Secrets{}, err
	}
	if sec.Reset, err = decodeChallenge(fields, fieldResetHash, fieldResetExpiresAt); err != nil {
		return account.Account{}, account.Secrets{}, err
	}

	return acc, sec, nil
}

func decodeChallenge(fields map[string]string, hashField, expiresField string) (*account.Challenge, error) {
	hash, hasHash := fields[hashField]
	expires, hasExpires := fields[expiresField]
	if !hasHash && !hasExpires {
		return nil, nil
	}
	if !hasHash || !hasExpires {
		return nil, errCorruptRecord
	}
	at, err := parseMilli(expires)
	if err != nil {
		return nil, err
	}
	return &account.Challenge{Hash: hash, ExpiresAt: at}, nil
}
