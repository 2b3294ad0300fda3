package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sorcerai/storm-mcp/internal/article"
	"github.com/sorcerai/storm-mcp/internal/swarm"
)

// polishStep is one pass of the polishing chain. Passes run in order and
// each sees the article as left by the previous pass.
type polishStep struct {
	name     swarm.TaskType
	when     func(r *run) bool
	agent    func(r *run) (swarm.Agent, error)
	payload  func(r *run, st *polishState) swarm.Payload
	apply    func(st *polishState, res *swarm.Result)
	thinking bool
}

type polishState struct {
	article string
	report  string
}

func byRole(role swarm.Role) func(r *run) (swarm.Agent, error) {
	return func(r *run) (swarm.Agent, error) {
		def := r.defaultBackend()
		return r.sw.SelectAgent(def, role, def)
	}
}

func rewrite(st *polishState, res *swarm.Result) {
	if strings.TrimSpace(res.Text) != "" {
		st.article = res.Text
	}
}

var polishSteps = []polishStep{
	{
		name:  swarm.TypePolish,
		agent: byRole(swarm.RoleReviewer),
		payload: func(_ *run, st *polishState) swarm.Payload {
			return swarm.Polish{Article: st.article, Options: []string{"grammar", "clarity", "flow", "consistency"}}
		},
		apply: rewrite,
	},
	{
		name:  swarm.TypeFactCheck,
		agent: byRole(swarm.RoleAnalyst),
		payload: func(_ *run, st *polishState) swarm.Payload {
			return swarm.FactCheck{Article: st.article}
		},
		apply: func(st *polishState, res *swarm.Result) { st.report = res.Text },
	},
	{
		name: swarm.TypeTechnicalReview,
		when: func(r *run) bool {
			return r.premiumTopic && len(r.sw.AgentsOn(r.premiumBackend())) > 0
		},
		agent: func(r *run) (swarm.Agent, error) {
			return r.sw.SelectAgent(r.premiumBackend(), swarm.RoleCoder, r.defaultBackend())
		},
		payload: func(r *run, st *polishState) swarm.Payload {
			return swarm.TechnicalReview{Topic: r.sw.Topic, Article: st.article}
		},
		apply: func(st *polishState, res *swarm.Result) {
			st.report = strings.TrimSpace(st.report + "\n\n" + res.Text)
		},
	},
	{
		name:  swarm.TypeFinalPolish,
		agent: byRole(swarm.RoleCoordinator),
		payload: func(_ *run, st *polishState) swarm.Payload {
			return swarm.Polish{
				Kind:        swarm.TypeFinalPolish,
				Article:     st.article,
				Options:     []string{"perfection", "voice", "impact"},
				Corrections: st.report,
			}
		},
		apply: rewrite,
	},
	{
		name: swarm.TypeLogicCheck,
		when: func(r *run) bool { return len(r.sw.AgentsOn(r.largeBackend())) > 0 },
		agent: func(r *run) (swarm.Agent, error) {
			return r.sw.AgentsOn(r.largeBackend())[0], nil
		},
		payload: func(r *run, st *polishState) swarm.Payload {
			return swarm.ArticleVerify{Topic: r.sw.Topic, Article: st.article}
		},
		apply:    rewrite,
		thinking: true,
	},
}

func (r *run) polish(ctx context.Context) error {
	st := &polishState{article: article.Combine(r.sections)}
	for _, step := range polishSteps {
		if step.when != nil && !step.when(r) {
			slog.Debug("polish step skipped", "swarm", r.sw.ID, "step", step.name)
			continue
		}
		a, err := step.agent(r)
		if err != nil {
			return err
		}
		var opts []swarm.TaskOption
		if step.thinking {
			opts = append(opts, swarm.WithThinking())
		}
		j, err := r.newJob(step.payload(r, st), a, opts...)
		if err != nil {
			return err
		}
		res, err := r.runOne(ctx, j)
		if err != nil {
			return err
		}
		step.apply(st, res)
	}
	if strings.TrimSpace(st.article) == "" {
		return errNoArticle
	}
	r.article = st.article
	return nil
}
