package curriculum

// ApplyDecision returns a new plan with the decision's actions applied in
// order. The input plan is never mutated. Applying the same decision twice
// yields the same plan: remedial items are keyed by name and moves are
// absolute positions.
func ApplyDecision(plan *Plan, d *Decision) *Plan {
	out := plan.Clone()
	if d == nil || !d.IsActionable() {
		return out
	}

	// move_topic positions refer to the remaining sequence at decision
	// time, so all moves are resolved against one reordered view before
	// insertions change indices.
	moves := make(map[string]int)
	for _, a := range d.Actions {
		switch a.Kind {
		case ActionMoveTopic:
			moves[a.Topic] = a.Position
		case ActionSetDifficulty:
			out.Difficulty = a.Difficulty
			for i := range out.Topics {
				if !out.Topics[i].Completed && !out.Topics[i].Remedial {
					out.Topics[i].Difficulty = a.Difficulty
				}
			}
		case ActionMarkSkippable:
			for i := range out.Topics {
				if out.Topics[i].Name == a.Topic {
					out.Topics[i].Skippable = true
					break
				}
			}
		}
	}
	if len(moves) > 0 {
		reorderRemaining(out, moves)
	}

	for _, a := range d.Actions {
		if a.Kind != ActionInsertRemedial {
			continue
		}
		insertRemedial(out, a)
	}
	return out
}

// reorderRemaining rebuilds the not-yet-completed portion of the topic list
// according to absolute target positions. Completed topics keep their
// original slots, and remedial items stay pinned where they were inserted so
// reapplying a decision cannot displace them.
func reorderRemaining(p *Plan, moves map[string]int) {
	var remaining []Topic
	for _, t := range p.Topics {
		if !t.Completed && !t.Remedial {
			remaining = append(remaining, t)
		}
	}
	reordered := make([]*Topic, len(remaining))

	var unmoved []Topic
	for _, t := range remaining {
		pos, ok := moves[t.Name]
		if ok && pos >= 0 && pos < len(reordered) && reordered[pos] == nil {
			cp := t
			reordered[pos] = &cp
			continue
		}
		unmoved = append(unmoved, t)
	}
	next := 0
	for i := range reordered {
		if reordered[i] == nil {
			cp := unmoved[next]
			reordered[i] = &cp
			next++
		}
	}

	idx := 0
	for i := range p.Topics {
		if p.Topics[i].Completed || p.Topics[i].Remedial {
			continue
		}
		p.Topics[i] = *reordered[idx]
		idx++
	}
}

// insertRemedial inserts a remedial topic before the first not-yet-completed
// occurrence of the action's Before topic. When the weak topic is absent
// from the plan, the item goes to the front of the remaining sequence.
// Duplicate remedial names are skipped so reapplication stays idempotent.
func insertRemedial(p *Plan, a Action) {
	for _, t := range p.Topics {
		if t.Name == a.Topic && t.Remedial {
			return
		}
	}

	item := Topic{
		Name:             a.Topic,
		Difficulty:       a.Difficulty,
		Remedial:         true,
		EstimatedMinutes: a.EstimatedMinutes,
	}

	at := -1
	for i, t := range p.Topics {
		if t.Completed {
			continue
		}
		if at < 0 {
			at = i
		}
		if t.Name == a.Before {
			at = i
			break
		}
	}
	if at < 0 {
		p.Topics = append(p.Topics, item)
		return
	}
	p.Topics = append(p.Topics, Topic{})
	copy(p.Topics[at+1:], p.Topics[at:])
	p.Topics[at] = item
}
