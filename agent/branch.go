package agent

// buildBranchPath composes the hierarchical branch identifier used to
// namespace state and artifact mutations of child agents. If parent is empty
// it returns child; an empty child returns parent.
func buildBranchPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}
