package suggest

// Question is one step of the reward profile questionnaire.
type Question struct {
	Key     string
	Prompt  string
	Options []string
}

// ProfileQuestions feed GenerateLoot with the user's break preferences.
var ProfileQuestions = []Question{
	{"mood", "What reward mood resonates most today?", []string{"Cozy & calm", "Playful & fun", "Focused & productive", "Adventurous & novel"}},
	{"place", "Where would you prefer to take a break?", []string{"Indoors at desk", "Indoors away from desk", "Outdoors nearby", "Outdoors longer"}},
	{"snacks", "Favorite treat style right now?", []string{"Savory", "Sweet", "Healthy/light", "Cafe drink"}},
	{"media", "Short-break content you enjoy?", []string{"Music/podcast", "YouTube/short video", "Reading/article", "No media"}},
	{"social", "Do you want this break solo or social?", []string{"Solo", "With friend/coworker", "Either"}},
	{"movement", "Preferred movement (if any)?", []string{"Walk", "Stretch/yoga", "Quick workout", "None"}},
	{"budget", "Reward budget today?", []string{"$0 (free)", "$1–$5", "$5–$15", "$15+"}},
	{"screen", "Screen preference for this break?", []string{"Screen-free", "Light screen ok", "Screen-heavy ok"}},
	{"time", "Typical break window that feels right?", []string{"10–20 min", "30–45 min", "60+ min"}},
	{"selfcare", "What self-care feels best right now?", []string{"Hydrate/snack", "Breathing/meditation", "Tidy/organize", "Journaling/notes"}},
}
