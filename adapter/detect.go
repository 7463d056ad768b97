package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/modemctl/at"
	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/repository"
)

// Executor runs a command to completion.
type Executor interface {
	Exec(ctx context.Context, cmd *modem.Command) (*modem.Response, error)
}

// identities maps identification substrings to variants. Order matters:
// the first match wins.
var identities = []struct {
	match string
	tag   Tag
}{
	{"XMM7260", XMM7260},
	{"XMM7160", XMM7160},
	{"XMM7360", XMM7x60},
	{"XMM7460", XMM7x60},
	{"XMM6360", XMM6360},
	{"XMM6260", XMM6260},
	{"X-GOLD7", INF7x60},
	{"X-GOLD6", INF6260},
	{"N721", INFN721},
	{"8790", SW8790},
}

// Identify maps identification text to a variant.
func Identify(text string) (Tag, bool) {
	text = strings.ToUpper(strings.ReplaceAll(text, " ", ""))
	for _, id := range identities {
		if strings.Contains(text, id.match) {
			return id.tag, true
		}
	}
	return "", false
}

// Detect selects the adapter once at startup. A Modem/Type entry in repo
// overrides identification; otherwise the model (AT+CGMM) and then the
// revision (AT+CGMR) are matched. Unknown hardware gets the base variant.
func Detect(ctx context.Context, exec Executor, repo repository.Repository) (*Adapter, error) {
	if repo != nil {
		v, err := repo.String(repository.GroupModem, repository.KeyModemType)
		switch {
		case err == nil && v != "":
			return New(Tag(strings.ToLower(strings.TrimSpace(v))))
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("adapter: read modem type: %w", err)
		}
	}

	var errs []error
	for _, line := range []string{at.CmdModel, at.CmdRevision} {
		rsp, err := exec.Exec(ctx, modem.NewCommand("identify", line))
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("%s: %w", line, err))
			continue
		}
		if tag, ok := Identify(rsp.Text()); ok {
			return New(tag)
		}
	}
	if len(errs) == 2 {
		return nil, fmt.Errorf("adapter: identify modem: %w", errors.Join(errs...))
	}
	return New(Base)
}
