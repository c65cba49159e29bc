//go:build !linux && !darwin

package security

var SensitiveEnv = []string{
	"QTSETTINGS_ADB_SERIAL",
}

type Hardening struct {
	Umask    int
	MaxFiles uint64
}

func NewHardening() *Hardening { return &Hardening{} }

// Apply is a no-op where rlimits and umask do not exist.
func (h *Hardening) Apply() {}
