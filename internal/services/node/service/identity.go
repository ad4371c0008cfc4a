package service

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"gitpulse/internal/core/proto"
	"gitpulse/internal/core/rid"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
)

// Identity is this node's stable RID plus its current profile.
// The RID survives restarts; the profile is rebuilt from config each boot
type Identity struct {
	RID     rid.RID           `json:"rid"`
	Profile proto.NodeProfile `json:"profile"`
}

// Bundle renders the identity as its knowledge bundle
func (i Identity) Bundle() (proto.Bundle, error) {
	return proto.NewBundle(i.RID, i.Profile)
}

// LoadOrCreateIdentity reads the persisted identity from dir, minting a
// fresh RID on first boot. The stored profile snapshot is replaced with
// the configured one and written back
func LoadOrCreateIdentity(dir, name string, profile proto.NodeProfile, log logger.Logger) (Identity, error) {
	path := filepath.Join(dir, "identity.json")

	ident := Identity{Profile: profile}
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		var stored Identity
		if jerr := json.Unmarshal(raw, &stored); jerr != nil || stored.RID.IsZero() {
			return Identity{}, perr.JSONErrf("identity: corrupt %s, refusing to mint a second identity", path)
		}
		ident.RID = stored.RID
	case os.IsNotExist(err):
		ident.RID, err = rid.Node(name, uuid.New())
		if err != nil {
			return Identity{}, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "identity: mint node RID")
		}
		log.Info().Str("rid", ident.RID.String()).Msg("minted node identity")
	default:
		return Identity{}, perr.Wrapf(err, perr.ErrorCodeUnavailable, "identity: read %s", path)
	}

	if err := writeIdentity(path, ident); err != nil {
		return Identity{}, err
	}
	return ident, nil
}

func writeIdentity(path string, ident Identity) error {
	raw, err := json.MarshalIndent(ident, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "identity: encode")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "identity: create state dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "identity: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "identity: replace %s", path)
	}
	return nil
}
