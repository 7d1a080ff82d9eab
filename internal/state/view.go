package state

type View int

const (
	ViewLogin View = iota
	ViewDialogs
	ViewChat
	ViewCreateGroup
	ViewAddMember
	ViewGroupInfo
	ViewEditGroupInfo
	ViewSettingsMain
	ViewSettingsIgnoreList
	ViewSettingsAppearance
)

var viewNames = map[View]string{
	ViewLogin:              "login",
	ViewDialogs:            "dialogs",
	ViewChat:               "chat",
	ViewCreateGroup:        "create_group",
	ViewAddMember:          "add_member",
	ViewGroupInfo:          "group_info",
	ViewEditGroupInfo:      "edit_group_info",
	ViewSettingsMain:       "settings_main",
	ViewSettingsIgnoreList: "settings_ignore_list",
	ViewSettingsAppearance: "settings_appearance",
}

func (v View) String() string {
	if name, ok := viewNames[v]; ok {
		return name
	}
	return "unknown"
}

func ParseView(name string) (View, bool) {
	for v, n := range viewNames {
		if n == name {
			return v, true
		}
	}
	return 0, false
}
