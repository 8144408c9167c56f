// Package i18n holds the user-facing message catalogs for the supported
// conversation languages.
package i18n

import "strings"

type Language string

const (
	English Language = "en"
	Russian Language = "ru"
)

func Supported() []Language {
	return []Language{English, Russian}
}

func Valid(lang Language) bool {
	switch lang {
	case English, Russian:
		return true
	default:
		return false
	}
}

// MatchChoice maps free text from the language-selection step to a language.
func MatchChoice(text string) (Language, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(normalized, "english"), normalized == "en":
		return English, true
	case strings.Contains(normalized, "русский"), strings.Contains(normalized, "russian"), normalized == "ru":
		return Russian, true
	default:
		return "", false
	}
}

type Messages struct {
	Welcome            string
	ChooseLanguage     string
	LanguageSelected   string
	LanguageChanged    string
	MainMenu           string
	ExploreModeLabel   string
	CreateModeLabel    string
	HelpLabel          string
	SettingsLabel      string
	BackLabel          string
	ChangeLanguage     string
	ExploreSelected    string
	CreateSelected     string
	UploadPrompt       string
	DatasetUploaded    string
	TableInfo          string
	QueryPrompt        string
	CreatingDataset    string
	DatasetCreated     string
	AddRowPrompt       string
	RowAdded           string
	SelectDataset      string
	DatasetList        string
	NoDatasets         string
	NoDatasetSelected  string
	NoResults          string
	ResultsTitle       string
	StatsSummary       string
	ShowingAllData     string
	ShowingSample      string
	FullDatasetCaption string
	VoiceTranscribed   string
	Cancelled          string
	ErrorGeneral       string
	ErrorCreateDataset string
	ErrorAddRow        string
	ErrorQuery         string
	HelpText           string
	SettingsText       string
}

// For returns the message catalog for lang, falling back to English.
func For(lang Language) Messages {
	if msgs, ok := catalogs[lang]; ok {
		return msgs
	}
	return catalogs[English]
}

var catalogs = map[Language]Messages{
	English: {
		Welcome:            "Welcome! I can help you explore tabular data using natural language.",
		ChooseLanguage:     "Please choose your preferred language:",
		LanguageSelected:   "English language selected. Let's get started!",
		LanguageChanged:    "Language changed to English.",
		MainMenu:           "Main menu. Choose a mode:",
		ExploreModeLabel:   "Explore data",
		CreateModeLabel:    "Create dataset",
		HelpLabel:          "Help",
		SettingsLabel:      "Settings",
		BackLabel:          "Back",
		ChangeLanguage:     "Change language",
		ExploreSelected:    "Explore mode. Upload a data file or send a query in natural language.",
		CreateSelected:     "Create mode. Create a new dataset or manage existing ones.",
		UploadPrompt:       "Please upload a data file (CSV, Parquet or SQLite).",
		DatasetUploaded:    "Dataset %q uploaded successfully (%s).",
		TableInfo:          "Table %s: %d columns, %d rows.",
		QueryPrompt:        "Enter your query (e.g. 'show all data', 'average salary by department'):",
		CreatingDataset:    "Send the dataset name and columns.\nExample: create dataset 'employees' with columns: id integer primary key, name text, salary real, department text",
		DatasetCreated:     "Dataset %q created with columns:\n%s",
		AddRowPrompt:       "Send a row to add (e.g. 'John Doe, 5000, Engineering'):",
		RowAdded:           "Row added successfully.",
		SelectDataset:      "Select a dataset to add data to:",
		DatasetList:        "Your datasets:\n%s",
		NoDatasets:         "You don't have any datasets yet. Send 'create' to create one.",
		NoDatasetSelected:  "Please select or upload a dataset first.",
		NoResults:          "No results found for your query.",
		ResultsTitle:       "Query results",
		StatsSummary:       "Found %d records. %s",
		ShowingAllData:     "Showing all data (%d records):",
		ShowingSample:      "Showing a sample of the data (%d records):",
		FullDatasetCaption: "Full dataset download",
		VoiceTranscribed:   "Voice transcribed: %q",
		Cancelled:          "Operation cancelled.",
		ErrorGeneral:       "Sorry, an error occurred. Please try again.",
		ErrorCreateDataset: "Couldn't create the dataset. Please try again with a clearer description.",
		ErrorAddRow:        "Couldn't parse that row. Please try again.",
		ErrorQuery:         "Couldn't process your query. Please try again.",
		HelpText: "Available modes:\n" +
			"Explore data: upload data files and query them with natural language.\n" +
			"Create dataset: create and fill your own datasets.\n\n" +
			"Examples:\n" +
			"- show me the entire table\n" +
			"- display all employees with salary greater than 5000\n" +
			"- create dataset 'expenses' with columns: id, date, amount, category\n" +
			"- add row: 2023-09-19, 50.00, groceries",
		SettingsText: "Settings",
	},
	Russian: {
		Welcome:            "Добро пожаловать! Я помогу вам исследовать табличные данные на естественном языке.",
		ChooseLanguage:     "Пожалуйста, выберите язык:",
		LanguageSelected:   "Выбран русский язык. Давайте начнем!",
		LanguageChanged:    "Язык изменен на русский.",
		MainMenu:           "Главное меню. Выберите режим:",
		ExploreModeLabel:   "Исследовать данные",
		CreateModeLabel:    "Создать набор данных",
		HelpLabel:          "Помощь",
		SettingsLabel:      "Настройки",
		BackLabel:          "Назад",
		ChangeLanguage:     "Сменить язык",
		ExploreSelected:    "Режим исследования. Загрузите файл данных или отправьте запрос на естественном языке.",
		CreateSelected:     "Режим создания. Создайте новый набор данных или управляйте существующими.",
		UploadPrompt:       "Загрузите файл данных (CSV, Parquet или SQLite).",
		DatasetUploaded:    "Набор данных %q успешно загружен (%s).",
		TableInfo:          "Таблица %s: %d столбцов, %d строк.",
		QueryPrompt:        "Введите запрос (например, 'показать всю таблицу', 'средняя зарплата по отделам'):",
		CreatingDataset:    "Отправьте название набора данных и столбцы.\nПример: создай набор 'сотрудники' со столбцами: id integer primary key, имя text, зарплата real, отдел text",
		DatasetCreated:     "Набор данных %q создан со столбцами:\n%s",
		AddRowPrompt:       "Отправьте строку для добавления (например, 'Иван Иванов, 5000, Разработка'):",
		RowAdded:           "Строка успешно добавлена.",
		SelectDataset:      "Выберите набор данных для добавления:",
		DatasetList:        "Ваши наборы данных:\n%s",
		NoDatasets:         "У вас пока нет наборов данных. Отправьте 'создать', чтобы создать один.",
		NoDatasetSelected:  "Сначала выберите или загрузите набор данных.",
		NoResults:          "По вашему запросу ничего не найдено.",
		ResultsTitle:       "Результаты запроса",
		StatsSummary:       "Найдено %d записей. %s",
		ShowingAllData:     "Показаны все данные (%d записей):",
		ShowingSample:      "Показана выборка данных (%d записей):",
		FullDatasetCaption: "Полный набор данных",
		VoiceTranscribed:   "Голос расшифрован: %q",
		Cancelled:          "Операция отменена.",
		ErrorGeneral:       "Извините, произошла ошибка. Попробуйте еще раз.",
		ErrorCreateDataset: "Не удалось создать набор данных. Попробуйте еще раз с более четким описанием.",
		ErrorAddRow:        "Не удалось разобрать строку. Попробуйте еще раз.",
		ErrorQuery:         "Не удалось обработать запрос. Попробуйте еще раз.",
		HelpText: "Доступные режимы:\n" +
			"Исследовать данные: загружайте файлы данных и делайте запросы на естественном языке.\n" +
			"Создать набор данных: создавайте и наполняйте собственные наборы данных.\n\n" +
			"Примеры:\n" +
			"- покажи всю таблицу\n" +
			"- отобразить всех сотрудников с зарплатой выше 5000\n" +
			"- создай набор 'расходы' со столбцами: id, дата, сумма, категория\n" +
			"- добавь строку: 2023-09-19, 50.00, продукты",
		SettingsText: "Настройки",
	},
}
