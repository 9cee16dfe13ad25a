package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"idleforge/internal/ledger"
	"idleforge/internal/save"
)

const (
	// MaxPurchase caps a single bulk producer purchase.
	MaxPurchase = int64(1000)

	DefaultStep       = 100 * time.Millisecond
	DefaultOfflineCap = 24 * time.Hour

	// Module ids used as effect owners. Source keys under them are the
	// feature ids, so re-registration on load overwrites.
	ModuleSkills       = "skills"
	ModuleAchievements = "achievements"
	ModuleMarket       = "market"
	ModulePrestige     = "prestige"

	prestigeBonusKey = "bonus"

	// ManualSystem is the target system for manual gain effects.
	ManualSystem = "manual"
)

var (
	ErrUnknownResource     = ledger.ErrUnknownResource
	ErrUnknownProducer     = errors.New("unknown producer")
	ErrUnknownSkill        = errors.New("unknown skill")
	ErrUnknownAchievement  = errors.New("unknown achievement")
	ErrUnknownUpgrade      = errors.New("unknown upgrade")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidQuantity     = fmt.Errorf("quantity must be between 1 and %d", MaxPurchase)
	ErrMaxLevel            = errors.New("skill already at max level")
	ErrAlreadyOwned        = errors.New("upgrade already owned")
	ErrPrestigeTooEarly    = errors.New("prestige would grant no points yet")
	ErrPrestigeUnavailable = errors.New("prestige is not configured")
	ErrInvalidID           = errors.New("id must be lowercase letters, digits or '_'")
	ErrSaveCorrupt         = save.ErrCorrupt
)

var idRE = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateID checks a feature id coming from outside the process.
func ValidateID(id string) error {
	if !idRE.MatchString(strings.TrimSpace(id)) {
		return ErrInvalidID
	}
	return nil
}

func ValidateQuantity(qty int64) error {
	if qty <= 0 || qty > MaxPurchase {
		return ErrInvalidQuantity
	}
	return nil
}
