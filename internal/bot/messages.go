package bot

const (
	emojiLocation = "\U0001F4CD"
	emojiSyringe  = "\U0001F489"

	msgWelcome = "Hi,\nSend me your area & age and I will update you when new slots for vaccination are available " + emojiSyringe

	msgAskAreaType = "How should I look up slots for you?"
	msgAskPincode  = "Send your PIN CODE " + emojiLocation
	msgAskState    = "Which state are you in?"
	msgAskDistrict = "Which district?"
	msgAskAge      = "What is your age?"

	msgBadPincode  = "Please provide a valid pin code"
	msgBadAge      = "Please provide a valid age group"
	msgBadState    = "I don't know that state; please pick one from the keyboard"
	msgBadDistrict = "I don't know that district; please pick one from the keyboard"

	msgHelp = "Press here to start again /start\n\nPress here /update your age/area\n\nPress /get_latest for the current list\n\nPress /stop_receiving_updates to pause, /resume_updates to resume"

	msgNotOnboarded = "I don't have your area yet. Press /start to set up updates."

	msgStopped = "You won't receive updates anymore.\nPress /resume_updates whenever you want them back."
	msgResumed = "Updates are back on " + emojiSyringe

	msgFetchFailed = "Couldn't fetch the result"
	msgNoSlots     = "No centers have slots available"
)

// choice keyboards

const (
	choicePincode  = "Pincode"
	choiceDistrict = "District"
)

// ageChoices maps the reply-keyboard labels to eligibility floors.
// "All Age groups" maps to 0, which disables the age check in filtering.
var ageChoices = map[string]int{
	"Above 45":       45,
	"Above 18":       18,
	"All Age groups": 0,
}

var ageChoiceOrder = []string{"Above 45", "Above 18", "All Age groups"}
