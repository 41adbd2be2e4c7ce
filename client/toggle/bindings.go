package toggle

// Control describes one follow button as found on the page: the bound
// user id, the class it starts in, and the view that renders it.
type Control struct {
	TargetID string
	Initial  State
	View     View
}

// Page is what the binder reads from the document: the anti-forgery
// token from the page metadata and the follow controls present at
// initialization time. Controls added later are not bound.
type Page interface {
	CSRFToken() string
	FollowControls() []Control
}

// Bind constructs one controller per control found on the page. The
// token is read once here and shared by every controller; the
// controllers are otherwise independent and may have concurrent
// in-flight requests against different targets.
func Bind(page Page, cfg Config) []*Controller {
	cfg.Token = page.CSRFToken()

	controls := page.FollowControls()
	controllers := make([]*Controller, 0, len(controls))
	for _, control := range controls {
		controllers = append(controllers,
			NewController(control.TargetID, control.Initial, control.View, cfg))
	}
	return controllers
}
