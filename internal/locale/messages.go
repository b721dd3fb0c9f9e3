package locale

import "fmt"

// MessageID identifies one localized string.
type MessageID string

const (
	Title          MessageID = "title"
	Subtitle       MessageID = "subtitle"
	CameraLabel    MessageID = "camera-label"
	GalleryLabel   MessageID = "gallery-label"
	CaptureLabel   MessageID = "capture-label"
	BackLabel      MessageID = "back-label"
	CancelLabel    MessageID = "cancel-label"
	AnalyzingLabel MessageID = "analyzing-label"
	ResultsLabel   MessageID = "results-label"
	BestMatchLabel MessageID = "best-match-label"
	RetryLabel     MessageID = "retry-label"
	NoFaceError    MessageID = "no-face-error"
	GenericError   MessageID = "generic-error"
)

// MessageIDs lists every id a dictionary must define.
var MessageIDs = []MessageID{
	Title, Subtitle, CameraLabel, GalleryLabel, CaptureLabel, BackLabel, CancelLabel,
	AnalyzingLabel, ResultsLabel, BestMatchLabel, RetryLabel, NoFaceError, GenericError,
}

// Messages is the dictionary of one locale.
type Messages map[MessageID]string

// Get returns the string for id. Dictionaries are validated at init, so a
// miss means an id outside MessageIDs.
func (m Messages) Get(id MessageID) string {
	return m[id]
}

var dictionaries = map[Locale]Messages{
	Uzbek: {
		Title:          "Qaysi mashhurga o'xshaysiz?",
		Subtitle:       "Suratga tushing yoki galereyadan rasm tanlang",
		CameraLabel:    "Kamera",
		GalleryLabel:   "Galereya",
		CaptureLabel:   "Suratga olish",
		BackLabel:      "Orqaga",
		CancelLabel:    "Bekor qilish",
		AnalyzingLabel: "Tahlil qilinmoqda...",
		ResultsLabel:   "Natijalar",
		BestMatchLabel: "Eng o'xshash",
		RetryLabel:     "Qayta urinish",
		NoFaceError:    "Yuz aniqlanmadi. Boshqa rasm bilan urinib ko'ring.",
		GenericError:   "Xatolik yuz berdi. Qayta urinib ko'ring.",
	},
	Russian: {
		Title:          "На какую знаменитость вы похожи?",
		Subtitle:       "Сделайте фото или выберите снимок из галереи",
		CameraLabel:    "Камера",
		GalleryLabel:   "Галерея",
		CaptureLabel:   "Сделать снимок",
		BackLabel:      "Назад",
		CancelLabel:    "Отмена",
		AnalyzingLabel: "Анализируем...",
		ResultsLabel:   "Результаты",
		BestMatchLabel: "Лучшее совпадение",
		RetryLabel:     "Попробовать снова",
		NoFaceError:    "Лицо не обнаружено. Попробуйте другое фото.",
		GenericError:   "Произошла ошибка. Попробуйте ещё раз.",
	},
	English: {
		Title:          "Which celebrity do you look like?",
		Subtitle:       "Take a photo or pick one from your gallery",
		CameraLabel:    "Camera",
		GalleryLabel:   "Gallery",
		CaptureLabel:   "Capture",
		BackLabel:      "Back",
		CancelLabel:    "Cancel",
		AnalyzingLabel: "Analyzing...",
		ResultsLabel:   "Results",
		BestMatchLabel: "Best match",
		RetryLabel:     "Try again",
		NoFaceError:    "No face detected. Try another photo.",
		GenericError:   "Something went wrong. Please try again.",
	},
}

func init() {
	if err := validateDictionaries(dictionaries); err != nil {
		panic(err)
	}
}

func validateDictionaries(dicts map[Locale]Messages) error {
	for _, loc := range Supported() {
		msgs, ok := dicts[loc]
		if !ok {
			return fmt.Errorf("locale: no dictionary for %q", loc)
		}
		for _, id := range MessageIDs {
			if msgs[id] == "" {
				return fmt.Errorf("locale: dictionary %q is missing %q", loc, id)
			}
		}
	}
	return nil
}
